// Package sprites combines SVG icons into a single stack sprite.
//
// In a stack sprite every icon is a nested <svg> that is hidden until it
// is the :target of the URL fragment, so sprite.svg#logo renders one icon.
package sprites

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"github.com/leapstack-labs/assetpipe/internal/assets"
)

// StackStyle shows only the targeted icon.
const StackStyle = ":root>svg{display:none}:root>svg:target{display:block}"

const svgNS = "http://www.w3.org/2000/svg"

// Icon is one parsed SVG.
type Icon struct {
	ID   string
	root *etree.Element
}

// ParseIcon reads an SVG document. The id is the file name without
// extension.
func ParseIcon(path string) (*Icon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, fmt.Errorf("%s: root element is not <svg>", filepath.Base(path))
	}
	base := filepath.Base(path)
	return &Icon{ID: strings.TrimSuffix(base, filepath.Ext(base)), root: root}, nil
}

// ViewBox returns the icon's viewBox, derived from width and height when
// the attribute is absent.
func (i *Icon) ViewBox() string {
	if vb := i.root.SelectAttrValue("viewBox", ""); vb != "" {
		return vb
	}
	w := strings.TrimSuffix(i.root.SelectAttrValue("width", ""), "px")
	h := strings.TrimSuffix(i.root.SelectAttrValue("height", ""), "px")
	if w == "" || h == "" {
		return ""
	}
	return "0 0 " + w + " " + h
}

// Build renders icons as a stack sprite document.
func Build(icons []*Icon) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	sprite := doc.CreateElement("svg")
	sprite.CreateAttr("xmlns", svgNS)
	sprite.CreateAttr("xmlns:xlink", "http://www.w3.org/1999/xlink")
	sprite.CreateElement("style").SetText(StackStyle)

	seen := make(map[string]bool, len(icons))
	for _, icon := range icons {
		if seen[icon.ID] {
			return nil, fmt.Errorf("duplicate icon id %q", icon.ID)
		}
		seen[icon.ID] = true

		nested := sprite.CreateElement("svg")
		nested.CreateAttr("id", icon.ID)
		if vb := icon.ViewBox(); vb != "" {
			nested.CreateAttr("viewBox", vb)
		}
		for _, child := range icon.root.ChildElements() {
			nested.AddChild(child.Copy())
		}
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// Write parses every match and writes the sprite to dest. A single
// unreadable icon fails the sprite; every parse error is reported.
func Write(matches []assets.Match, dest string) (int, error) {
	icons := make([]*Icon, 0, len(matches))
	var errs []error
	for _, m := range matches {
		icon, err := ParseIcon(m.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		icons = append(icons, icon)
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}

	data, err := Build(icons)
	if err != nil {
		return 0, err
	}
	if err := assets.WriteFileAtomic(dest, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write sprite: %w", err)
	}
	return len(icons), nil
}
