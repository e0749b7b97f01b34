package imagemin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/state"
)

// DefaultParallel bounds concurrent uploads.
const DefaultParallel = 75

// Shrinker compresses one image.
type Shrinker interface {
	Shrink(ctx context.Context, data []byte) ([]byte, error)
}

// Cache remembers compressed output by source hash.
type Cache interface {
	GetCachedImage(ctx context.Context, sourceHash string) (*state.CachedImage, error)
	PutCachedImage(ctx context.Context, img *state.CachedImage) error
}

// Options configures a Compressor.
type Options struct {
	Shrinker Shrinker
	// Cache and CacheDir are optional; without them every image is uploaded.
	Cache    Cache
	CacheDir string
	Parallel int
}

// Stats summarizes a compression run.
type Stats struct {
	Compressed int
	Cached     int
	BytesIn    int64
	BytesOut   int64
}

// Saved returns the number of bytes saved.
func (s Stats) Saved() int64 {
	return s.BytesIn - s.BytesOut
}

// Compressor compresses images in place in the output tree.
type Compressor struct {
	opts   Options
	logger *slog.Logger
}

// NewCompressor creates a compressor.
func NewCompressor(opts Options, logger *slog.Logger) *Compressor {
	if opts.Parallel < 1 {
		opts.Parallel = DefaultParallel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compressor{opts: opts, logger: logger}
}

var compressible = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// IsCompressible reports whether the service accepts the file type.
func IsCompressible(path string) bool {
	return compressible[strings.ToLower(filepath.Ext(path))]
}

// HashContent returns the cache key for data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compress compresses every compressible match and writes the result to
// destDir under the match's relative path. Each file is attempted; the
// failures are joined.
func (c *Compressor) Compress(ctx context.Context, matches []assets.Match, destDir string) (Stats, error) {
	var (
		mu    sync.Mutex
		stats Stats
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallel)

	for _, m := range matches {
		if !IsCompressible(m.Path) {
			continue
		}
		g.Go(func() error {
			in, out, cached, err := c.compressOne(gctx, m, destDir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.Rel, err))
				return nil
			}
			stats.BytesIn += in
			stats.BytesOut += out
			if cached {
				stats.Cached++
			} else {
				stats.Compressed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, errors.Join(errs...)
}

func (c *Compressor) compressOne(ctx context.Context, m assets.Match, destDir string) (in, out int64, cached bool, err error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return 0, 0, false, err
	}
	hash := HashContent(data)
	dest := filepath.Join(destDir, filepath.FromSlash(m.Rel))

	if compressed, ok := c.lookup(ctx, hash); ok {
		if err := assets.WriteFileAtomic(dest, compressed, 0o644); err != nil {
			return 0, 0, false, err
		}
		return int64(len(data)), int64(len(compressed)), true, nil
	}

	compressed, err := c.opts.Shrinker.Shrink(ctx, data)
	if err != nil {
		return 0, 0, false, err
	}
	if err := assets.WriteFileAtomic(dest, compressed, 0o644); err != nil {
		return 0, 0, false, err
	}
	c.store(ctx, hash, int64(len(data)), compressed)

	c.logger.Debug("compressed image",
		slog.String("image", m.Rel),
		slog.Int("input", len(data)),
		slog.Int("output", len(compressed)))
	return int64(len(data)), int64(len(compressed)), false, nil
}

// lookup returns the cached output for hash. Cache problems count as a miss.
func (c *Compressor) lookup(ctx context.Context, hash string) ([]byte, bool) {
	if c.opts.Cache == nil || c.opts.CacheDir == "" {
		return nil, false
	}
	entry, err := c.opts.Cache.GetCachedImage(ctx, hash)
	if err != nil {
		c.logger.Warn("image cache lookup failed", slog.String("error", err.Error()))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(c.opts.CacheDir, entry.CacheFile))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Compressor) store(ctx context.Context, hash string, inputSize int64, compressed []byte) {
	if c.opts.Cache == nil || c.opts.CacheDir == "" {
		return
	}
	if err := assets.WriteFileAtomic(filepath.Join(c.opts.CacheDir, hash), compressed, 0o644); err != nil {
		c.logger.Warn("failed to write image cache", slog.String("error", err.Error()))
		return
	}
	err := c.opts.Cache.PutCachedImage(ctx, &state.CachedImage{
		SourceHash: hash,
		CacheFile:  hash,
		InputSize:  inputSize,
		OutputSize: int64(len(compressed)),
	})
	if err != nil {
		c.logger.Warn("failed to record image cache entry", slog.String("error", err.Error()))
	}
}
