package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/assetpipe/internal/assets"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	for _, cat := range Categories {
		if strings.TrimSpace(c.Src.Get(cat)) == "" {
			errs = append(errs, fmt.Errorf("src.%s is required", cat))
		}
		if strings.TrimSpace(c.Build.Get(cat)) == "" {
			errs = append(errs, fmt.Errorf("build.%s is required", cat))
		}
	}

	if c.Images.Parallel < 1 {
		errs = append(errs, fmt.Errorf("images.parallel must be at least 1, got %d", c.Images.Parallel))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Output {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be one of auto, text, json, got %q", c.Output))
	}
	if c.Clean == "" {
		errs = append(errs, fmt.Errorf("clean is required"))
	} else if c.ProjectRoot != "" {
		if err := assets.CheckContained(c.ProjectRoot, c.Clean); err != nil {
			errs = append(errs, fmt.Errorf("clean: %w", err))
		}
	}

	return errors.Join(errs...)
}
