package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads type descriptors from a remote source.
type Fetcher interface {
	FetchTypes(ctx context.Context, ids []string) ([]Type, error)
}

// Catalogue is an in-memory type catalogue, optionally backed by a Fetcher
// for types it does not hold yet. It is safe for concurrent use.
type Catalogue struct {
	mu    sync.RWMutex
	types map[string]*Type

	fetcher Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Catalogue.
type Option func(*Catalogue)

// WithFetcher sets the remote source for RequestTypes and Prefetch.
func WithFetcher(f Fetcher) Option {
	return func(c *Catalogue) {
		c.fetcher = f
	}
}

// WithLogger sets the logger used for background fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalogue) {
		c.logger = l
	}
}

// New creates an empty catalogue.
func New(opts ...Option) *Catalogue {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Catalogue{
		types:  make(map[string]*Type),
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the descriptor for id. The returned value must not be
// modified.
func (c *Catalogue) Type(id string) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[id]
	return t, ok
}

// Put stores types, replacing any descriptor already held for the same id.
func (c *Catalogue) Put(types ...Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range types {
		t := types[i].clone()
		t.normalize()
		c.types[t.ID] = t
	}
}

// Merge stores types, merging each into the descriptor already held for the
// same id.
func (c *Catalogue) Merge(types ...Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range types {
		t := types[i].clone()
		t.normalize()
		existing, ok := c.types[t.ID]
		if !ok {
			c.types[t.ID] = t
			continue
		}
		merged := existing.clone()
		merged.MergeWith(t)
		c.types[t.ID] = merged
	}
}

// Types returns all descriptors sorted by label, then id.
func (c *Catalogue) Types() []*Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Type, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Missing returns the ids among ids the catalogue does not hold, sorted and
// without duplicates.
func (c *Catalogue) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := c.types[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Prefetch fetches the missing ids among ids and stores the result.
// Concurrent calls for the same set of missing ids share one fetch.
func (c *Catalogue) Prefetch(ctx context.Context, ids []string) error {
	missing := c.Missing(ids)
	if len(missing) == 0 || c.fetcher == nil {
		return nil
	}
	key := strings.Join(missing, "\x00")
	_, err, _ := c.group.Do(key, func() (any, error) {
		types, err := c.fetcher.FetchTypes(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.Put(types...)
		return nil, nil
	})
	return err
}

// RequestTypes prefetches ids in the background. Failures are logged.
func (c *Catalogue) RequestTypes(ids []string) {
	if c.fetcher == nil || len(c.Missing(ids)) == 0 {
		return
	}
	ids = append([]string(nil), ids...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Prefetch(c.ctx, ids); err != nil {
			c.logger.Warn("type prefetch failed", "ids", ids, "error", err)
		}
	}()
}

// Wait blocks until background prefetches started so far have finished.
func (c *Catalogue) Wait() {
	c.wg.Wait()
}

// Close cancels background prefetches and waits for them to return.
func (c *Catalogue) Close() {
	c.cancel()
	c.wg.Wait()
}
