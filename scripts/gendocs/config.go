package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/assetpipe/internal/cli/config"
)

// sectionDocs describes the top-level configuration sections.
var sectionDocs = map[string]string{
	"src":         "Source globs per asset category, relative to the project root.",
	"watch":       "Globs that trigger a rebuild of the category during development.",
	"build":       "Output directories per asset category.",
	"pages":       "Handlebars layouts and partials.",
	"styles":      "Sass compilation and CSS post-processing.",
	"scripts":     "JavaScript bundling.",
	"fonts":       "TrueType to WOFF2 conversion and the generated font stylesheet.",
	"sprites":     "SVG stack sprite.",
	"images":      "TinyPNG compression used by the production build.",
	"server":      "Development server.",
	"(top level)": "General settings.",
}

// configEntry is one flattened configuration key.
type configEntry struct {
	Section string
	Key     string
	Default string
}

// configEntries flattens the default configuration, grouped by section.
func configEntries() []configEntry {
	defaults := config.Defaults()
	entries := make([]configEntry, 0, len(defaults))
	for key, val := range defaults {
		section := "(top level)"
		if i := strings.Index(key, "."); i > 0 {
			section = key[:i]
		}
		entries = append(entries, configEntry{Section: section, Key: key, Default: formatDefault(val)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Section != entries[j].Section {
			return entries[i].Section < entries[j].Section
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func formatDefault(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return ""
		}
		return InlineCode(val)
	case []string:
		return InlineCode("[" + strings.Join(val, ", ") + "]")
	default:
		return InlineCode(fmt.Sprint(val))
	}
}

// generateConfigDocs writes configuration.md.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "assetpipe configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("assetpipe reads `assetpipe.yaml` from the project root. Every key is optional. " +
		"Relative paths resolve against the project root.")

	var section string
	var rows [][]string
	flush := func() {
		if section == "" {
			return
		}
		w.Header(2, InlineCode(section))
		if doc := sectionDocs[section]; doc != "" {
			w.Paragraph(doc)
		}
		w.Table([]string{"Key", "Default", "Environment"}, rows)
		rows = nil
	}
	for _, e := range configEntries() {
		if e.Section != section {
			flush()
			section = e.Section
		}
		env := config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(e.Key, ".", "__"))
		rows = append(rows, []string{InlineCode(e.Key), e.Default, InlineCode(env)})
	}
	flush()

	return os.WriteFile(filepath.Join(outDir, "configuration.md"), w.Bytes(), 0o644)
}
