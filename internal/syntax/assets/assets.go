// Package assets resolves query sources to local bytes for the parser
// engine. It fronts the data root directory with an in-memory cache and
// mirrors resolved files into an on-disk cache directory so repeated engine
// starts avoid re-reading originals.
//
// Network and download details live with the embedding application; from the
// engine's point of view an asset is either inline text, a file under the
// data root, or an absolute path.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cache "github.com/patrickmn/go-cache"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// ErrEmptySource is returned for a query source with neither path nor inline
// text.
var ErrEmptySource = errors.New("assets: query source has no path or inline text")

// cacheDirName is the directory under the data root holding mirrored assets.
// ClearCache removes it wholesale.
const cacheDirName = "query-cache"

// Provider resolves query sources to bytes.
type Provider interface {
	// Load returns the bytes for a query source.
	Load(ctx context.Context, src syntax.QuerySource) ([]byte, error)

	// Prepare creates any directories the provider needs.
	Prepare() error

	// SetRoot repoints the provider at a new data root and prepares it.
	SetRoot(root string) error

	// ClearCache empties the in-memory cache and deletes on-disk cached
	// assets. Loaded originals under the data root are not touched.
	ClearCache() error
}

// DiskProvider is the default Provider backed by a directory tree.
type DiskProvider struct {
	mu   sync.RWMutex
	root string
	mem  *cache.Cache
}

// NewDiskProvider creates a provider rooted at the given directory. The
// directory does not need to exist yet; Prepare creates it.
func NewDiskProvider(root string) *DiskProvider {
	return &DiskProvider{
		root: root,
		mem:  cache.New(cache.NoExpiration, 0),
	}
}

// Prepare creates the data root and cache directory.
func (p *DiskProvider) Prepare() error {
	p.mu.RLock()
	root := p.root
	p.mu.RUnlock()

	if root == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(root, cacheDirName), 0o755); err != nil {
		return fmt.Errorf("assets: prepare data root: %w", err)
	}
	return nil
}

// Load implements Provider. Inline sources bypass the caches entirely.
func (p *DiskProvider) Load(ctx context.Context, src syntax.QuerySource) ([]byte, error) {
	if src.Inline != "" {
		return []byte(src.Inline), nil
	}
	if src.Path == "" {
		return nil, ErrEmptySource
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := p.cacheKey(src)
	if data, ok := p.mem.Get(key); ok {
		return data.([]byte), nil
	}

	path := src.Path
	if !filepath.IsAbs(path) {
		p.mu.RLock()
		path = filepath.Join(p.root, path)
		p.mu.RUnlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assets: load %s: %w", src.Path, err)
	}

	p.mem.Set(key, data, cache.NoExpiration)
	p.mirror(src, data)
	return data, nil
}

// SetRoot implements Provider. Cached entries keyed under the old root stay
// in memory until ClearCache; keys embed the root so they cannot alias.
func (p *DiskProvider) SetRoot(root string) error {
	p.mu.Lock()
	p.root = root
	p.mu.Unlock()
	return p.Prepare()
}

// ClearCache implements Provider.
func (p *DiskProvider) ClearCache() error {
	p.mem.Flush()

	p.mu.RLock()
	root := p.root
	p.mu.RUnlock()

	if root == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(root, cacheDirName)); err != nil {
		return fmt.Errorf("assets: clear cache: %w", err)
	}
	return nil
}

// Root returns the current data root.
func (p *DiskProvider) Root() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// cacheKey builds a memory cache key scoped to the current root.
func (p *DiskProvider) cacheKey(src syntax.QuerySource) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root + "\x00" + src.Path
}

// mirror writes a copy of a resolved asset into the cache directory. Mirror
// failures are deliberately swallowed: the cache is an optimization and the
// caller already has the bytes.
func (p *DiskProvider) mirror(src syntax.QuerySource, data []byte) {
	p.mu.RLock()
	root := p.root
	p.mu.RUnlock()

	if root == "" {
		return
	}
	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}
	dst := filepath.Join(root, cacheDirName, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(dst, data, 0o644)
}
