package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed all:templates
var templateFS embed.FS

// Embedded files that cannot be stored under their real name.
var specialNames = map[string]string{
	"gitignore": ".gitignore",
}

// scaffoldedFile is one template file and what happened to it.
type scaffoldedFile struct {
	Path string // slash separated, relative to the target directory
	Kept bool   // an existing file was left untouched
}

// configFile is the only file --force replaces.
const configFile = "assetpipe.yaml"

// scaffold writes the embedded template templateName into targetDir.
// Existing files are kept; force only replaces an existing config file.
func scaffold(templateName, targetDir string, force bool) ([]scaffoldedFile, error) {
	root := path.Join("templates", templateName)
	var files []scaffoldedFile

	err := fs.WalkDir(templateFS, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil || name == root {
			return err
		}
		rel := renameSpecialFiles(name[len(root)+1:])
		target := filepath.Join(targetDir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}

		if !force || rel != configFile {
			if _, err := os.Stat(target); err == nil {
				files = append(files, scaffoldedFile{Path: rel, Kept: true})
				return nil
			}
		}

		content, err := templateFS.ReadFile(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return err
		}
		files = append(files, scaffoldedFile{Path: rel})
		return nil
	})
	return files, err
}

// renameSpecialFiles maps an embedded slash path to the name it is written as.
func renameSpecialFiles(rel string) string {
	dir, base := path.Split(rel)
	if name, ok := specialNames[base]; ok {
		return dir + name
	}
	return rel
}
