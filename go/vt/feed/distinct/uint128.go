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
package distinct

import (
	"encoding/binary"
	"encoding/hex"
	"math/bits"
	"strings"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

// UInt128 is a 128 bit unsigned integer made of two 64 bit halves.
// Equality and ordering are bit-wise.
type UInt128 struct {
	Hi uint64
	Lo uint64
}

// Size is the number of bytes in the binary form of a UInt128.
const Size = 16

// Add returns u+v modulo 2^128.
func (u UInt128) Add(v UInt128) UInt128 {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, _ := bits.Add64(u.Hi, v.Hi, carry)
	return UInt128{Hi: hi, Lo: lo}
}

// Compare returns -1, 0 or 1 as u is less than, equal to or greater than v.
func (u UInt128) Compare(v UInt128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

// IsZero returns true if all bits are zero.
func (u UInt128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// Bytes returns the binary form: the low half little-endian followed by the
// high half little-endian.
func (u UInt128) Bytes() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint64(b[:8], u.Lo)
	binary.LittleEndian.PutUint64(b[8:], u.Hi)
	return b
}

// FromBytes is the inverse of Bytes.
func FromBytes(b [Size]byte) UInt128 {
	return UInt128{
		Lo: binary.LittleEndian.Uint64(b[:8]),
		Hi: binary.LittleEndian.Uint64(b[8:]),
	}
}

// String returns the upper-case, dash separated hex form of the binary
// representation, e.g. 01-00-00-00-00-00-00-00-00-00-00-00-00-00-00-00.
func (u UInt128) String() string {
	b := u.Bytes()
	var sb strings.Builder
	sb.Grow(Size*3 - 1)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return sb.String()
}

// ParseUInt128 parses the form produced by String. Hex digits may be in
// either case. Anything else, including a wrong number of bytes, is an
// InvalidArgument error.
func ParseUInt128(s string) (UInt128, error) {
	parts := strings.Split(s, "-")
	if len(parts) != Size {
		return UInt128{}, vterrors.Errorf(codes.InvalidArgument, "invalid UInt128 %q: want %d dash separated bytes, got %d", s, Size, len(parts))
	}
	var b [Size]byte
	for i, p := range parts {
		if len(p) != 2 {
			return UInt128{}, vterrors.Errorf(codes.InvalidArgument, "invalid UInt128 %q: byte %d is %q", s, i, p)
		}
		if _, err := hex.Decode(b[i:i+1], []byte(p)); err != nil {
			return UInt128{}, vterrors.Wrapf(vterrors.New(codes.InvalidArgument, err.Error()), "invalid UInt128 %q", s)
		}
	}
	return FromBytes(b), nil
}

// MarshalText implements encoding.TextMarshaler.
func (u UInt128) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UInt128) UnmarshalText(text []byte) error {
	v, err := ParseUInt128(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
