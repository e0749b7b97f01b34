package pages

import (
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
)

// helpers returns the block helpers bound to the page being rendered.
//
// ifpage and unlesspage accept one or more page names separated by
// whitespace or commas: {{#ifpage "index about"}}.
func helpers(current string) map[string]interface{} {
	return map[string]interface{}{
		"ifpage": func(names string, options *raymond.Options) string {
			if pageIn(current, names) {
				return options.Fn()
			}
			return options.Inverse()
		},
		"unlesspage": func(names string, options *raymond.Options) string {
			if !pageIn(current, names) {
				return options.Fn()
			}
			return options.Inverse()
		},
		"ifequal": func(a, b interface{}, options *raymond.Options) string {
			if raymond.Str(a) == raymond.Str(b) {
				return options.Fn()
			}
			return options.Inverse()
		},
		"repeat": func(count interface{}, options *raymond.Options) string {
			n, err := strconv.Atoi(raymond.Str(count))
			if err != nil || n <= 0 {
				return ""
			}
			var b strings.Builder
			for range n {
				b.WriteString(options.Fn())
			}
			return b.String()
		},
	}
}

func pageIn(current, names string) bool {
	for _, name := range strings.FieldsFunc(names, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if name == current {
			return true
		}
	}
	return false
}
