package fonts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/shell"
	"github.com/leapstack-labs/assetpipe/internal/testutil"
)

func TestWeight(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"Roboto-Thin", 100},
		{"Roboto-ThinItalic", 100},
		{"Inter-ExtraLight", 200},
		{"OpenSans-Light", 300},
		{"OpenSans-Regular", 400},
		{"Montserrat-Medium", 500},
		{"Montserrat-SemiBold", 600},
		{"Poppins-SemiItalic", 600},
		{"OpenSans-Bold", 700},
		{"OpenSans-ExtraBold", 700}, // Bold is checked before ExtraBold
		{"Lato-Heavy", 700},
		{"Lato-Black", 900},
		{"Lato-Italic", 400},
		{"Lato", 400},
		{"lato-bold", 400}, // case-sensitive
		{"", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Weight(tt.name))
		})
	}
}

func TestDeclarations_CollapsesConsecutiveDuplicates(t *testing.T) {
	decls := Declarations([]string{"OpenSans-Bold.woff2", "OpenSans-Bold.woff2", "OpenSans-Light.ttf"})

	require.Len(t, decls, 2)
	assert.Equal(t, Declaration{Family: "OpenSans", File: "OpenSans-Bold", Weight: 700}, decls[0])
	assert.Equal(t, Declaration{Family: "OpenSans", File: "OpenSans-Light", Weight: 300}, decls[1])
}

func TestDeclarations_NonConsecutiveDuplicatesKept(t *testing.T) {
	decls := Declarations([]string{"A-Bold.ttf", "B-Thin.ttf", "A-Bold.woff2"})
	assert.Len(t, decls, 3)
}

func TestDeclarations_NameWithoutHyphenOrDot(t *testing.T) {
	decls := Declarations([]string{"Inter"})
	require.Len(t, decls, 1)
	assert.Equal(t, Declaration{Family: "Inter", File: "Inter", Weight: 400}, decls[0])
}

func TestRender(t *testing.T) {
	out := Render([]Declaration{
		{Family: "OpenSans", File: "OpenSans-Bold", Weight: 700},
		{Family: "OpenSans", File: "OpenSans-Light", Weight: 300},
	})
	assert.Equal(t,
		"@include font-face(\"OpenSans\", \"OpenSans-Bold\", 700);\r\n"+
			"@include font-face(\"OpenSans\", \"OpenSans-Light\", 300);\r\n",
		string(out))
	assert.Empty(t, Render(nil))
}

func TestWriteStylesheet_DiscardsPriorContent(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"dist/assets/fonts/OpenSans-Light.woff2":    "w",
		"dist/assets/fonts/OpenSans-Bold.woff2":     "w",
		"src/assets/scss/_fonts.scss":               "@include font-face(\"Old\", \"Old-Regular\", 400);\r\n",
		"dist/assets/fonts/nested/Ignored-Thin.ttf": "t",
	})
	target := filepath.Join(root, "src/assets/scss/_fonts.scss")

	decls, err := WriteStylesheet(filepath.Join(root, "dist/assets/fonts"), target)
	require.NoError(t, err)
	assert.Len(t, decls, 2)

	assert.Equal(t,
		"@include font-face(\"OpenSans\", \"OpenSans-Bold\", 700);\r\n"+
			"@include font-face(\"OpenSans\", \"OpenSans-Light\", 300);\r\n",
		testutil.ReadFile(t, root, "src/assets/scss/_fonts.scss"))
}

func TestWriteStylesheet_MissingFontsDirTruncates(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"_fonts.scss": "stale"})
	target := filepath.Join(root, "_fonts.scss")

	decls, err := WriteStylesheet(filepath.Join(root, "missing"), target)
	require.NoError(t, err)
	assert.Empty(t, decls)
	assert.Empty(t, testutil.ReadFile(t, root, "_fonts.scss"))
}

func TestConverter_Convert(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"src/assets/fonts/OpenSans-Bold.ttf": "ttf-bytes",
	})
	matches, err := assets.Glob(root, "src/assets/fonts/*.ttf")
	require.NoError(t, err)

	// stand-in for woff2_compress: writes the .woff2 next to the input
	conv := NewConverter(shell.NewRunner(nil), `cat "$IN" > "$OUT"`, testutil.NewTestLogger(t))
	dest := filepath.Join(root, "dist/assets/fonts")

	n, err := conv.Convert(context.Background(), matches, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ttf-bytes", testutil.ReadFile(t, root, "dist/assets/fonts/OpenSans-Bold.woff2"))

	// the source tree is untouched
	_, err = os.Stat(filepath.Join(root, "src/assets/fonts/OpenSans-Bold.woff2"))
	assert.True(t, os.IsNotExist(err))
}

func TestConverter_ReportsMissingOutput(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"fonts/A-Regular.ttf": "a",
		"fonts/B-Regular.ttf": "b",
	})
	matches, err := assets.Glob(root, "fonts/*.ttf")
	require.NoError(t, err)

	conv := NewConverter(shell.NewRunner(nil), `true`, nil)
	n, err := conv.Convert(context.Background(), matches, filepath.Join(root, "out"))
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "A-Regular.ttf")
	assert.Contains(t, err.Error(), "B-Regular.ttf")
}
