// Package pages renders Handlebars pages into layouts, panini style.
//
// A page is an HTML file with optional YAML front matter. The page body
// becomes the "body" partial of its layout; partials are shared across all
// pages and registered by file base name.
package pages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymerick/raymond"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/assetpipe/internal/assets"
)

const (
	// DefaultLayout is used when a page names no layout.
	DefaultLayout = "default"
	// NoLayout renders the page body on its own.
	NoLayout = "none"
)

// Options configures a Compiler.
type Options struct {
	// Layouts is the directory holding <name>.html layouts.
	Layouts string
	// Partials is the directory searched recursively for partials.
	Partials string
}

// Compiler renders pages. Layouts and partials are reloaded on every
// Compile call so watch-triggered rebuilds pick up edits.
type Compiler struct {
	opts   Options
	logger *slog.Logger
}

// NewCompiler creates a page compiler.
func NewCompiler(opts Options, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{opts: opts, logger: logger}
}

// Page is a parsed source page.
type Page struct {
	// Name is the file name without extension.
	Name string
	// Rel is the slash-separated output path.
	Rel string
	// Data is the decoded front matter.
	Data map[string]interface{}
	// Body is the template source after the front matter.
	Body string
}

// Layout returns the layout named by the front matter.
func (p *Page) Layout() string {
	if v, ok := p.Data["layout"]; ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return DefaultLayout
}

// Root returns the relative path from the page to the output root.
func (p *Page) Root() string {
	return strings.Repeat("../", strings.Count(p.Rel, "/"))
}

// ParsePage splits front matter from the template body.
func ParsePage(rel string, data []byte) (*Page, error) {
	fm, body, err := SplitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	base := filepath.Base(filepath.FromSlash(rel))
	return &Page{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		Rel:  rel,
		Data: fm,
		Body: string(body),
	}, nil
}

var fence = []byte("---")

// SplitFrontMatter separates a leading "---" fenced YAML block from the
// rest of data. Data without front matter is returned unchanged with an
// empty map.
func SplitFrontMatter(data []byte) (map[string]interface{}, []byte, error) {
	fm := map[string]interface{}{}

	first, rest, ok := cutLine(data)
	if !ok || !bytes.Equal(bytes.TrimSpace(first), fence) {
		return fm, data, nil
	}

	var yamlBuf bytes.Buffer
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = cutLine(rest)
		if bytes.Equal(bytes.TrimSpace(line), fence) {
			if err := yaml.Unmarshal(yamlBuf.Bytes(), &fm); err != nil {
				return nil, nil, fmt.Errorf("invalid front matter: %w", err)
			}
			if fm == nil {
				fm = map[string]interface{}{}
			}
			return fm, rest, nil
		}
		yamlBuf.Write(line)
		yamlBuf.WriteByte('\n')
	}
	return nil, nil, errors.New("unterminated front matter")
}

// cutLine returns the first line of data without its terminator.
func cutLine(data []byte) (line, rest []byte, found bool) {
	line, rest, found = bytes.Cut(data, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), rest, found
}

// Compile renders every page among matches into destDir. All pages are
// attempted; failures are joined.
func (c *Compiler) Compile(ctx context.Context, matches []assets.Match, destDir string) (int, error) {
	layouts, err := c.loadLayouts()
	if err != nil {
		return 0, err
	}
	partials, err := c.loadPartials()
	if err != nil {
		return 0, err
	}

	var errs []error
	rendered := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return rendered, err
		}
		data, err := os.ReadFile(m.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read page %s: %w", m.Rel, err))
			continue
		}
		page, err := ParsePage(m.Rel, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		html, err := Render(page, layouts, partials)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out := filepath.Join(destDir, filepath.FromSlash(m.Rel))
		if err := assets.WriteFileAtomic(out, []byte(html), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("failed to write page %s: %w", m.Rel, err))
			continue
		}
		c.logger.Debug("rendered page", slog.String("page", m.Rel), slog.String("layout", page.Layout()))
		rendered++
	}
	return rendered, errors.Join(errs...)
}

func (c *Compiler) loadLayouts() (map[string]string, error) {
	matches, err := assets.Glob(c.opts.Layouts, "*.html")
	if err != nil {
		return nil, err
	}
	return readSources(matches)
}

func (c *Compiler) loadPartials() (map[string]string, error) {
	matches, err := assets.Glob(c.opts.Partials, "**/*.html")
	if err != nil {
		return nil, err
	}
	partials, err := readSources(matches)
	if err != nil {
		return nil, err
	}
	if _, ok := partials["body"]; ok {
		return nil, errors.New(`partial name "body" is reserved for the page content`)
	}
	return partials, nil
}

// readSources reads matches keyed by file name without extension.
func readSources(matches []assets.Match) (map[string]string, error) {
	sources := make(map[string]string, len(matches))
	seen := make(map[string]string, len(matches))
	for _, m := range matches {
		base := filepath.Base(m.Path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate template name %q: %s and %s", name, prev, m.Rel)
		}
		data, err := os.ReadFile(m.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", m.Rel, err)
		}
		seen[name] = m.Rel
		sources[name] = string(data)
	}
	return sources, nil
}

// Render renders a page with its layout and the shared partials.
func Render(page *Page, layouts, partials map[string]string) (string, error) {
	source := page.Body
	layout := page.Layout()
	if layout != NoLayout {
		var ok bool
		source, ok = layouts[layout]
		if !ok {
			return "", fmt.Errorf("%s: layout %q not found", page.Rel, layout)
		}
	}

	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", fmt.Errorf("%s: %w", page.Rel, err)
	}
	tpl.RegisterPartials(partials)
	if layout != NoLayout {
		tpl.RegisterPartial("body", page.Body)
	}
	tpl.RegisterHelpers(helpers(page.Name))

	ctx := make(map[string]interface{}, len(page.Data)+2)
	for k, v := range page.Data {
		ctx[k] = v
	}
	ctx["page"] = page.Name
	ctx["root"] = page.Root()

	out, err := tpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", page.Rel, err)
	}
	return out, nil
}
