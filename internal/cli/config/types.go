// Package config provides configuration management for the assetpipe CLI.
package config

// Category names of the asset tables.
const (
	CategoryHTML      = "html"
	CategoryJS        = "js"
	CategoryCSS       = "css"
	CategoryImages    = "images"
	CategorySVG       = "svg"
	CategoryFonts     = "fonts"
	CategoryResources = "resources"
)

// Categories lists every asset category in a stable order.
var Categories = []string{
	CategoryHTML, CategoryJS, CategoryCSS, CategoryImages,
	CategorySVG, CategoryFonts, CategoryResources,
}

// Paths maps an asset category to a glob or directory.
type Paths struct {
	HTML      string `koanf:"html"`
	JS        string `koanf:"js"`
	CSS       string `koanf:"css"`
	Images    string `koanf:"images"`
	SVG       string `koanf:"svg"`
	Fonts     string `koanf:"fonts"`
	Resources string `koanf:"resources"`
}

// Get returns the entry for category.
func (p Paths) Get(category string) string {
	switch category {
	case CategoryHTML:
		return p.HTML
	case CategoryJS:
		return p.JS
	case CategoryCSS:
		return p.CSS
	case CategoryImages:
		return p.Images
	case CategorySVG:
		return p.SVG
	case CategoryFonts:
		return p.Fonts
	case CategoryResources:
		return p.Resources
	}
	return ""
}

// PagesConfig configures Handlebars page compilation.
type PagesConfig struct {
	Layouts  string `koanf:"layouts"`
	Partials string `koanf:"partials"`
}

// StylesConfig configures stylesheet compilation.
type StylesConfig struct {
	Command  string   `koanf:"command"`
	Suffix   string   `koanf:"suffix"`
	Engines  []string `koanf:"engines"`
	LoadPath string   `koanf:"load_path"`
}

// ScriptsConfig configures script bundling.
type ScriptsConfig struct {
	Output string `koanf:"output"`
	Target string `koanf:"target"`
}

// FontsConfig configures font conversion and the generated stylesheet.
type FontsConfig struct {
	Stylesheet string `koanf:"stylesheet"`
	Command    string `koanf:"command"`
}

// SpritesConfig configures the SVG sprite sheet.
type SpritesConfig struct {
	Output string `koanf:"output"`
}

// ImagesConfig configures hosted image compression.
type ImagesConfig struct {
	APIKey   string `koanf:"api_key"`
	Endpoint string `koanf:"endpoint"`
	Parallel int    `koanf:"parallel"`
	CacheDir string `koanf:"cache_dir"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Config holds all CLI configuration options.
type Config struct {
	Src       Paths         `koanf:"src"`
	Watch     Paths         `koanf:"watch"`
	Build     Paths         `koanf:"build"`
	Clean     string        `koanf:"clean"`
	Pages     PagesConfig   `koanf:"pages"`
	Styles    StylesConfig  `koanf:"styles"`
	Scripts   ScriptsConfig `koanf:"scripts"`
	Fonts     FontsConfig   `koanf:"fonts"`
	Sprites   SpritesConfig `koanf:"sprites"`
	Images    ImagesConfig  `koanf:"images"`
	Server    ServerConfig  `koanf:"server"`
	StatePath string        `koanf:"state_path"`
	Verbose   bool          `koanf:"verbose"`
	Output    string        `koanf:"output"`

	// ProjectRoot is the directory every relative path resolves against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultStateFile      = ".assetpipe/state.db"
	DefaultPort           = 3000
	DefaultImagesParallel = 75
	DefaultTinifyEndpoint = "https://api.tinify.com/shrink"
	DefaultStyleSuffix    = ".min"
	DefaultSassCommand    = `sass --no-source-map --style=expanded --load-path="$LOAD_PATH" "$IN"`
	DefaultFontsCommand   = `woff2_compress "$IN"`
	DefaultOutput         = "auto"
)

// Defaults returns the default configuration as a flat key map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"src.html":      "src/*.html",
		"src.js":        "src/assets/js/main.js",
		"src.css":       "src/assets/scss/**/*.scss",
		"src.images":    "src/assets/img/**/*.{jpg,jpeg,png,svg,gif,ico,webmanifest,xml}",
		"src.svg":       "src/assets/img/svg/*.svg",
		"src.fonts":     "src/assets/fonts/*.ttf",
		"src.resources": "src/assets/resources/**",

		"watch.html":      "src/**/*.html",
		"watch.js":        "src/assets/js/**/*.js",
		"watch.css":       "src/assets/scss/**/*.scss",
		"watch.images":    "src/assets/img/**/*.{jpg,jpeg,png,svg,gif,ico,webmanifest,xml}",
		"watch.svg":       "src/assets/img/svg/*.svg",
		"watch.fonts":     "src/assets/fonts/*.ttf",
		"watch.resources": "src/assets/resources/**",

		"build.html":      "dist/",
		"build.js":        "dist/assets/js/",
		"build.css":       "dist/assets/css/",
		"build.images":    "dist/assets/img/",
		"build.svg":       "dist/assets/img/",
		"build.fonts":     "dist/assets/fonts/",
		"build.resources": "dist/assets/resources",

		"clean": "./dist",

		"pages.layouts":  "src/tpl/layouts",
		"pages.partials": "src/tpl/partials",

		"styles.command":   DefaultSassCommand,
		"styles.suffix":    DefaultStyleSuffix,
		"styles.engines":   []string{"chrome58", "firefox57", "safari11", "edge16"},
		"styles.load_path": "src/assets/scss",

		"scripts.output": "main.js",
		"scripts.target": "es2015",

		"fonts.stylesheet": "src/assets/scss/_fonts.scss",
		"fonts.command":    DefaultFontsCommand,

		"sprites.output": "sprite.svg",

		"images.api_key":   "",
		"images.endpoint":  DefaultTinifyEndpoint,
		"images.parallel":  DefaultImagesParallel,
		"images.cache_dir": ".assetpipe/images",

		"server.host": "localhost",
		"server.port": DefaultPort,

		"state_path": DefaultStateFile,
		"verbose":    false,
		"output":     DefaultOutput,
	}
}
