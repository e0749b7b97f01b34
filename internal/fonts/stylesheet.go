package fonts

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/leapstack-labs/assetpipe/internal/assets"
)

// Declaration is one font-face inclusion in the generated stylesheet.
type Declaration struct {
	Family string
	File   string
	Weight int
}

// String renders the declaration as a Sass mixin call.
func (d Declaration) String() string {
	return fmt.Sprintf("@include font-face(%q, %q, %d);\r\n", d.Family, d.File, d.Weight)
}

// Declarations derives font-face declarations from file names in listing
// order. The file part is the name up to the first dot, the family is the
// file part up to the first hyphen. A name equal to the previous one is
// skipped, so the .ttf/.woff2 pair of one face yields a single declaration.
func Declarations(names []string) []Declaration {
	var decls []Declaration
	prev := ""
	for i, name := range names {
		file, _, _ := strings.Cut(name, ".")
		family, _, _ := strings.Cut(file, "-")
		if i > 0 && file == prev {
			continue
		}
		prev = file
		decls = append(decls, Declaration{Family: family, File: file, Weight: Weight(file)})
	}
	return decls
}

// Render concatenates declarations into stylesheet content.
func Render(decls []Declaration) []byte {
	var buf bytes.Buffer
	for _, d := range decls {
		buf.WriteString(d.String())
	}
	return buf.Bytes()
}

// ListFonts returns the names of regular files in dir, sorted by name.
// A missing directory is an empty listing.
func ListFonts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list fonts in %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// WriteStylesheet regenerates target from the fonts found in fontsDir.
// The whole content is built in memory and swapped in atomically; any
// previous content of target is discarded.
func WriteStylesheet(fontsDir, target string) ([]Declaration, error) {
	names, err := ListFonts(fontsDir)
	if err != nil {
		return nil, err
	}
	decls := Declarations(names)
	if err := assets.WriteFileAtomic(target, Render(decls), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write font stylesheet: %w", err)
	}
	return decls, nil
}
