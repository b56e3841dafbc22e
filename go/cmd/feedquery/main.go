/*
Copyright 2026 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// feedquery runs a cross-partition query against an in-memory collection
// loaded from a YAML fixture and prints the documents as JSON lines.
package main

import (
	"vitess.io/docfeed/go/cmd/feedquery/cli"
	"vitess.io/docfeed/go/vt/log"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		log.Exitf("%v", err)
	}
}
