package storage

import (
	"context"
	"sync"

	"github.com/zoeplatform/zoefinan/internal/cache"
	"github.com/zoeplatform/zoefinan/internal/core"
)

// CachedStore serves Get from a cache and refreshes the entry on every write.
// Cache hits are deep copies, so callers may mutate what they get.
//
// Every write bumps a per-user generation before and after touching the inner
// store. A document is cached only when the generation it was read under is
// still current, so a slow read never puts an older document back.
type CachedStore struct {
	DocumentStore
	cache cache.Cache[core.UserDocument]

	mu  sync.Mutex
	gen map[string]uint64
}

func NewCachedStore(inner DocumentStore, c cache.Cache[core.UserDocument]) *CachedStore {
	return &CachedStore{DocumentStore: inner, cache: c, gen: make(map[string]uint64)}
}

// Inner returns the wrapped store.
func (s *CachedStore) Inner() DocumentStore { return s.DocumentStore }

func (s *CachedStore) Get(ctx context.Context, uid string) (*core.UserDocument, error) {
	if doc, ok := s.cache.Get(uid); ok {
		return cloneDocument(&doc)
	}
	gen := s.generation(uid)
	doc, err := s.DocumentStore.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	s.rememberAt(uid, doc, gen, false)
	return doc, nil
}

func (s *CachedStore) Set(ctx context.Context, uid string, doc *core.UserDocument) error {
	s.bump(uid)
	err := s.DocumentStore.Set(ctx, uid, doc)
	s.invalidate(uid)
	return err
}

func (s *CachedStore) Update(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error) {
	gen := s.bump(uid)
	doc, err := s.DocumentStore.Update(ctx, uid, fn)
	if err != nil {
		s.invalidate(uid)
		return nil, err
	}
	s.rememberAt(uid, doc, gen, true)
	return doc, nil
}

func (s *CachedStore) generation(uid string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[uid]
}

func (s *CachedStore) bump(uid string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[uid]++
	return s.gen[uid]
}

// invalidate closes a write: readers that started before it can no longer
// cache what they read.
func (s *CachedStore) invalidate(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[uid]++
	s.cache.Delete(uid)
}

// rememberAt caches doc if no write started since gen was observed. A writer
// passes closing=true to also end its own write.
func (s *CachedStore) rememberAt(uid string, doc *core.UserDocument, gen uint64, closing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.gen[uid] == gen
	if closing {
		s.gen[uid]++
	}
	if !current {
		s.cache.Delete(uid)
		return
	}
	if cp, err := cloneDocument(doc); err == nil {
		s.cache.Set(uid, *cp)
	}
}
