// Package segment maps displayable values to seven-segment LED patterns.
//
// Patterns are active-high with the layout .gfedcba: bit 0 is segment a (top), bit 6 is segment g
// (middle), and bit 7 is the decimal point.  Whether a set bit drives a line high or low is up to
// the output backend.
//
//	 aaa
//	f   b
//	 ggg
//	e   c
//	 ddd  .
package segment

import "fmt"

// Code is the bit pattern for one digit position.
type Code uint8

// DecimalPoint is OR-ed into any Code to light the decimal point.
const DecimalPoint Code = 0x80

// Value is an index into the lookup table.  0-9 are the decimal digits.
type Value uint8

const (
	A     Value = 0xa
	B     Value = 0xb
	C     Value = 0xc
	D     Value = 0xd
	E     Value = 0xe
	F     Value = 0xf
	Blank Value = 0x10
	Dash  Value = 0x11
	H     Value = 0x12
	DP    Value = 0x13 // decimal point only
)

var table = [...]Code{
	0x3f, // 0
	0x06, // 1
	0x5b, // 2
	0x4f, // 3
	0x66, // 4
	0x6d, // 5
	0x7d, // 6
	0x07, // 7
	0x7f, // 8
	0x6f, // 9
	0x77, // A
	0x7c, // b
	0x58, // c
	0x5e, // d
	0x79, // E
	0x71, // F
	0x00, // blank
	0x40, // -
	0x74, // h
	0x80, // .
}

// NumValues is the size of the lookup table; valid Values are [0, NumValues).
const NumValues = len(table)

// CodeFor returns the pattern for v.  It panics if v is outside the table; passing one is a bug in
// the caller, not a runtime condition.
func CodeFor(v Value) Code {
	if int(v) >= NumValues {
		panic(fmt.Sprintf("segment: value %#x out of range", uint8(v)))
	}
	return table[v]
}

// Digit returns the Value for a decimal digit n, for callers holding ints.
func Digit(n int) Value {
	if n < 0 || n > 9 {
		panic(fmt.Sprintf("segment: %d is not a decimal digit", n))
	}
	return Value(n)
}

// Segments returns the lit segment names of c, in a-g order followed by "." for the decimal
// point.  It's used to label the preview and in test failure messages.
func (c Code) Segments() string {
	var buf []byte
	for i, name := range "abcdefg." {
		if c&(1<<i) != 0 {
			buf = append(buf, byte(name))
		}
	}
	return string(buf)
}
