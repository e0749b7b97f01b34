// Package fonts converts web fonts and generates the stylesheet that
// declares them.
package fonts

import "strings"

// DefaultWeight is used when a font name carries no known style keyword.
const DefaultWeight = 400

// weightKeywords is checked in order; the first keyword contained in the
// name wins. "SemiBold" precedes "Semi", and "Bold" precedes "ExtraBold",
// so an ExtraBold face resolves to 700.
var weightKeywords = []struct {
	keyword string
	weight  int
}{
	{"Thin", 100},
	{"ExtraLight", 200},
	{"Light", 300},
	{"Regular", 400},
	{"Medium", 500},
	{"SemiBold", 600},
	{"Semi", 600},
	{"Bold", 700},
	{"ExtraBold", 800},
	{"Heavy", 700},
	{"Black", 900},
}

// Weight infers the numeric font-weight from a font file base name such as
// "OpenSans-SemiBold". Matching is case-sensitive.
func Weight(name string) int {
	for _, kw := range weightKeywords {
		if strings.Contains(name, kw.keyword) {
			return kw.weight
		}
	}
	return DefaultWeight
}
