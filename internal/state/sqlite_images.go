package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCachedImage looks up a compressed image by source hash.
// Returns nil, nil when the hash is not cached.
func (s *SQLiteStore) GetCachedImage(ctx context.Context, sourceHash string) (*CachedImage, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	img := &CachedImage{}
	err := s.db.QueryRowContext(ctx,
		`SELECT source_hash, cache_file, input_size, output_size, created_at FROM image_cache WHERE source_hash = ?`,
		sourceHash,
	).Scan(&img.SourceHash, &img.CacheFile, &img.InputSize, &img.OutputSize, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached image: %w", err)
	}
	return img, nil
}

// PutCachedImage inserts or replaces a cache entry.
func (s *SQLiteStore) PutCachedImage(ctx context.Context, img *CachedImage) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_cache (source_hash, cache_file, input_size, output_size, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_hash) DO UPDATE SET
		   cache_file = excluded.cache_file,
		   input_size = excluded.input_size,
		   output_size = excluded.output_size,
		   created_at = excluded.created_at`,
		img.SourceHash, img.CacheFile, img.InputSize, img.OutputSize, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to cache image: %w", err)
	}
	return nil
}
