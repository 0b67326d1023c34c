package obd

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidDTC = errors.New("invalid DTC")

var dtcPattern = regexp.MustCompile(`^[PCBU][0-9]{4}$`)

var systemBits = map[byte]byte{'P': 0, 'C': 1, 'B': 2, 'U': 3}

const systemChars = "PCBU"

// ValidDTC reports whether code has the form X dddd with X one of P, C, B, U.
func ValidDTC(code string) bool { return dtcPattern.MatchString(code) }

// EncodeDTC packs a code into the two bytes carried by a mode 0x03 response:
//
//	A = system<<6 | d1<<4 | d2
//	B = d3<<4 | d4
//
// d1 has only two bits of room. Digits 4..9 spill into the system field and
// the code does not survive DecodeDTC.
func EncodeDTC(code string) (a, b byte, err error) {
	if !ValidDTC(code) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDTC, code)
	}
	sys := systemBits[code[0]]
	d1, d2, d3, d4 := code[1]-'0', code[2]-'0', code[3]-'0', code[4]-'0'
	a = sys<<6 | d1<<4 | d2
	b = d3<<4 | d4
	return a, b, nil
}

// DecodeDTC unpacks the two DTC bytes. Nibbles above 9 are rendered as hex
// digits so the result is always five characters.
func DecodeDTC(a, b byte) string {
	sys := systemChars[(a>>6)&0x03]
	d1 := (a >> 4) & 0x03
	d2 := a & 0x0F
	d3 := (b >> 4) & 0x0F
	d4 := b & 0x0F
	return fmt.Sprintf("%c%X%X%X%X", sys, d1, d2, d3, d4)
}

// ParseDTCs extracts codes from a mode 0x03 response payload. Parsing stops
// at the declared length, the end of the payload or a 0x0000 pair. P0000
// encodes as 0x0000 too, so a stored P0000 ends the list and is not reported.
func ParseDTCs(payload []byte) []string {
	if len(payload) < 3 {
		return nil
	}
	length := int(payload[0])
	if length <= 2 {
		return nil
	}
	var codes []string
	left := length - 2
	for i := 3; left >= 2 && i+1 < len(payload); i += 2 {
		a, b := payload[i], payload[i+1]
		if a == 0 && b == 0 {
			break
		}
		codes = append(codes, DecodeDTC(a, b))
		left -= 2
	}
	return codes
}
