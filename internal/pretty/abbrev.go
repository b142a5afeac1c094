// Package pretty formats values for humans reading logs and command output.
package pretty

import "fmt"

// Abbrev shortens s for display. With no ranges, strings longer than 12 are
// cut to 12. One range sets both the limit and the cut, two set them
// separately.
func Abbrev(s string, ranges ...int) Abbreviated {
	maxLen, cutTo := 12, 12
	if len(ranges) >= 2 {
		maxLen, cutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		maxLen, cutTo = ranges[0], ranges[0]
	}
	return Abbreviated{
		Original: s,
		MaxLen:   maxLen,
		CutTo:    cutTo,
	}
}

// Abbreviated is a string that is shortened when formatted.
type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
	// Tail is the number of trailing characters kept after the cut.
	Tail int
}

// Hex abbreviates a 0x-prefixed value like a hash or subscription id,
// keeping both ends: "0xcd0c3e…0faf5".
func Hex(s string) Abbreviated {
	return Abbreviated{
		Original: s,
		MaxLen:   16,
		CutTo:    8,
		Tail:     5,
	}
}

func (s Abbreviated) String() string {
	if len(s.Original) <= s.MaxLen || s.CutTo+s.Tail >= len(s.Original) {
		return s.Original
	}
	return fmt.Sprintf("%s…%s", s.Original[:s.CutTo], s.Original[len(s.Original)-s.Tail:])
}
