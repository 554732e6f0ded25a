// Package attachment implements the content-addressed on-disk cache for
// provider attachment blobs: cache filenames are derived from the
// attachment id and name, eviction is LRU by createdAt, and every
// mutation orders disk and database writes so a crash between them
// never leaves a dangling database pointer (see Cache.Cache and evictOne).
package attachment

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/store"
	"github.com/rs/zerolog"
)

// DefaultMaxCacheBytes is the default eviction threshold (500 MiB).
const DefaultMaxCacheBytes int64 = 500 * 1024 * 1024

// Cache is the LRU-evicting, content-addressed attachment file cache.
// Every mutation keeps on-disk state and the attachments table
// convergent even across a crash: Cache writes the file before it
// records local_path, and evictOne clears local_path before it deletes
// the file, so a crash leaves at worst an orphan file, never a pointer
// to a missing one.
type Cache struct {
	dir           string
	maxCacheBytes int64
	store         *store.AttachmentStore
	log           zerolog.Logger
}

// NewCache builds a Cache rooted at dir, evicting above maxCacheBytes
// (DefaultMaxCacheBytes if <= 0).
func NewCache(dir string, maxCacheBytes int64, attachments *store.AttachmentStore) *Cache {
	if maxCacheBytes <= 0 {
		maxCacheBytes = DefaultMaxCacheBytes
	}
	return &Cache{
		dir:           dir,
		maxCacheBytes: maxCacheBytes,
		store:         attachments,
		log:           logging.WithComponent("attachment"),
	}
}

// cacheFilename derives sha256(id+filename)[0:16] + ext, preserving the
// original extension so cached files remain recognizable on disk.
func cacheFilename(id int64, filename string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(id, 10) + filename))
	name := hex.EncodeToString(sum[:])[:16]
	if ext := filepath.Ext(filename); ext != "" {
		name += ext
	}
	return name
}

// IsCached reports whether attachment id's recorded local_path still
// exists on disk. A record pointing at a missing file self-heals: the
// pointer is cleared and false is returned, per the cache's crash-safety
// contract (the record is the thing that can go stale, not the file).
func (c *Cache) IsCached(id int64) (bool, error) {
	a, err := c.store.Get(id)
	if err != nil {
		return false, err
	}
	if a.LocalPath == "" {
		return false, nil
	}
	if _, err := os.Stat(a.LocalPath); err != nil {
		if os.IsNotExist(err) {
			if clearErr := c.store.SetLocalPath(id, ""); clearErr != nil {
				return false, clearErr
			}
			return false, nil
		}
		return false, fmt.Errorf("attachment: stat cached file: %w", err)
	}
	return true, nil
}

// Cache decodes base64Content, writes it under the cache directory, and
// records local_path, in that order, then evicts if the directory now
// exceeds the configured limit.
func (c *Cache) Cache(id int64, base64Content string) error {
	a, err := c.store.Get(id)
	if err != nil {
		return err
	}

	content, err := base64.StdEncoding.DecodeString(base64Content)
	if err != nil {
		return fmt.Errorf("attachment: decode content: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return fmt.Errorf("attachment: create cache dir: %w", err)
	}

	path := filepath.Join(c.dir, cacheFilename(id, a.Filename))
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("attachment: write cache file: %w", err)
	}

	if err := c.store.SetLocalPath(id, path); err != nil {
		return fmt.Errorf("attachment: record cache pointer: %w", err)
	}

	return c.evictIfNeeded()
}

// Read returns the base64-encoded cached bytes for attachment id, or a
// KindNotFound error if it isn't (or is no longer) on disk.
func (c *Cache) Read(id int64) (string, error) {
	cached, err := c.IsCached(id)
	if err != nil {
		return "", err
	}
	if !cached {
		return "", apperrors.New(apperrors.KindNotFound, fmt.Sprintf("attachment %d not cached", id))
	}

	a, err := c.store.Get(id)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(a.LocalPath)
	if err != nil {
		return "", fmt.Errorf("attachment: read cache file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(content), nil
}

// evictIfNeeded deletes the oldest cached rows (by createdAt, the
// access-recency proxy) until total cached bytes are under the limit.
// Every eviction clears the database pointer before removing the file,
// mirroring cache()'s write order in reverse: a crash mid-eviction
// leaves an orphan file, never a dangling pointer.
func (c *Cache) evictIfNeeded() error {
	cached, err := c.store.ListCached()
	if err != nil {
		return err
	}

	var total int64
	sizes := make(map[int64]int64, len(cached))
	for _, a := range cached {
		size, err := fileSize(a.LocalPath)
		if err != nil {
			continue
		}
		sizes[a.ID] = size
		total += size
	}

	for _, a := range cached {
		if total <= c.maxCacheBytes {
			break
		}
		size, ok := sizes[a.ID]
		if !ok {
			continue
		}
		if err := c.evictOne(a.ID, a.LocalPath); err != nil {
			c.log.Warn().Err(err).Int64("attachment", a.ID).Msg("failed to evict cached attachment")
			continue
		}
		total -= size
	}
	return nil
}

func (c *Cache) evictOne(id int64, path string) error {
	if err := c.store.SetLocalPath(id, ""); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear deletes every cached file and clears every local_path column.
func (c *Cache) Clear() error {
	cached, err := c.store.ListCached()
	if err != nil {
		return err
	}
	for _, a := range cached {
		if err := c.evictOne(a.ID, a.LocalPath); err != nil {
			c.log.Warn().Err(err).Int64("attachment", a.ID).Msg("failed to clear cached attachment")
		}
	}
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// cacheExtOf is exposed for tests asserting the filename contract.
func cacheExtOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
