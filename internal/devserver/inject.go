package devserver

import (
	"bytes"

	"golang.org/x/net/html"
)

// InjectScript inserts snippet before the last </body> tag of page, or
// appends it when the page has no body end tag.
func InjectScript(page []byte, snippet string) []byte {
	z := html.NewTokenizer(bytes.NewReader(page))
	offset, insertAt := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				insertAt = offset
			}
		}
		offset += size
	}

	if insertAt < 0 {
		out := make([]byte, 0, len(page)+len(snippet))
		out = append(out, page...)
		return append(out, snippet...)
	}

	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:insertAt]...)
	out = append(out, snippet...)
	return append(out, page[insertAt:]...)
}
