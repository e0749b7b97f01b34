// Package main generates the markdown reference for the assetpipe CLI and
// its configuration keys.
//
// Usage:
//
//	go run ./scripts/gendocs                      # docs/ and docs/cli/
//	go run ./scripts/gendocs -gen=cli -outdir=out # CLI pages straight into out/
//	go run ./scripts/gendocs -gen=config
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

var (
	genFlag    = flag.String("gen", "all", "what to generate: cli, config, all")
	outDirFlag = flag.String("outdir", "", "output directory (default: <project>/docs)")
)

// generator writes one part of the reference below a docs directory.
type generator struct {
	name string
	sub  string
	run  func(outDir string) error
}

var generators = []generator{
	{name: "cli", sub: "cli", run: generateCLIDocs},
	{name: "config", sub: "", run: generateConfigDocs},
}

func main() {
	flag.Parse()

	var selected []generator
	for _, g := range generators {
		if *genFlag == "all" || *genFlag == g.name {
			selected = append(selected, g)
		}
	}
	if len(selected) == 0 {
		log.Fatalf("unknown -gen value: %s (use: cli, config, all)", *genFlag)
	}

	docsDir := *outDirFlag
	if docsDir == "" {
		projectRoot, err := findProjectRoot()
		if err != nil {
			log.Fatalf("failed to find project root: %v", err)
		}
		log.Printf("Project root: %s", projectRoot)
		docsDir = filepath.Join(projectRoot, "docs")
	}

	for _, g := range selected {
		dir := docsDir
		// a single generator writes straight into -outdir
		if g.sub != "" && (*outDirFlag == "" || len(selected) > 1) {
			dir = filepath.Join(docsDir, g.sub)
		}
		if err := g.run(dir); err != nil {
			log.Fatalf("failed to generate %s docs: %v", g.name, err)
		}
		log.Printf("Generated %s docs in %s", g.name, dir)
	}
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
