// Package main provides end-to-end tests for the assetpipe CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/assetpipe/internal/cli"
)

// writeSite creates a site that builds without external tools: plain CSS
// entries skip sass and there are no fonts to convert.
func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"assetpipe.yaml":                "src:\n  css: src/assets/css/*.css\n",
		"src/index.html":                "---\ntitle: Home\n---\n<h1>{{title}}</h1>",
		"src/tpl/layouts/default.html":  "<html><head></head><body>{{> body}}</body></html>",
		"src/assets/js/main.js":         "const greet = (name) => console.log('hi ' + name);\ngreet('there');\n",
		"src/assets/css/main.css":       "a {\n  color: #ff0000;\n}\n",
		"src/assets/img/svg/check.svg":  `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0h24v24H0z"/></svg>`,
		"src/assets/resources/site.txt": "resource",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := runCLI(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "assetpipe v") {
		t.Errorf("version output should contain 'assetpipe v', got: %s", output)
	}
}

func TestBuildCommand(t *testing.T) {
	dir := writeSite(t)

	output, err := runCLI(t, "build", "--project-dir", dir, "-o", "text")
	if err != nil {
		t.Fatalf("build command error = %v\n%s", err, output)
	}
	if !strings.Contains(output, "Finished 'build'") {
		t.Errorf("build output should report completion, got: %s", output)
	}

	for _, rel := range []string{
		"dist/index.html",
		"dist/assets/js/main.js",
		"dist/assets/css/main.min.css",
		"dist/assets/img/sprite.svg",
		"dist/assets/img/svg/check.svg",
		"dist/assets/resources/site.txt",
		"src/assets/scss/_fonts.scss",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}

	// production builds write no source maps
	for _, rel := range []string{"dist/assets/js/main.js.map", "dist/assets/css/main.min.css.map"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); !os.IsNotExist(err) {
			t.Errorf("expected no %s in a production build", rel)
		}
	}

	css, err := os.ReadFile(filepath.Join(dir, "dist", "assets", "css", "main.min.css"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(css), "\n  color") {
		t.Errorf("stylesheet should be minified, got: %s", css)
	}
}

func TestBuildCommand_RecordsHistory(t *testing.T) {
	dir := writeSite(t)

	if output, err := runCLI(t, "build", "--project-dir", dir); err != nil {
		t.Fatalf("build command error = %v\n%s", err, output)
	}

	output, err := runCLI(t, "history", "--project-dir", dir, "-o", "text")
	if err != nil {
		t.Fatalf("history command error = %v", err)
	}
	if !strings.Contains(output, "build") || !strings.Contains(output, "production") {
		t.Errorf("history should list the production build, got: %s", output)
	}
}

func TestRunCommand_UnknownTask(t *testing.T) {
	dir := writeSite(t)

	_, err := runCLI(t, "run", "minify", "--project-dir", dir)
	if err == nil {
		t.Fatal("expected an error for an unknown task")
	}
	if !strings.Contains(err.Error(), "unknown task") {
		t.Errorf("unexpected error: %v", err)
	}
}
