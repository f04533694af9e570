package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zoeplatform/zoefinan/internal/core"
)

// MemoryStore keeps documents and credentials in process. Documents are
// copied on every read and write so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	creds map[string]Credential
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string][]byte),
		creds: make(map[string]Credential),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, uid string) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.docs[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(raw)
}

func (s *MemoryStore) Set(ctx context.Context, uid string, doc *core.UserDocument) error {
	if err := checkUID(uid); err != nil {
		return err
	}
	cp := *doc
	touch(&cp, s.now())
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	s.docs[uid] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.docs[uid]
	if !ok {
		return nil, ErrNotFound
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	touch(doc, s.now())
	if raw, err = json.Marshal(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	s.docs[uid] = raw
	return decodeDocument(raw)
}

func (s *MemoryStore) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateCredential(ctx context.Context, c Credential) error {
	key := normalizeEmail(c.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[key]; exists {
		return ErrCredentialExists
	}
	c.Email = key
	c.PasswordHash = append([]byte(nil), c.PasswordHash...)
	s.creds[key] = c
	return nil
}

func (s *MemoryStore) CredentialByEmail(ctx context.Context, email string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[normalizeEmail(email)]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) DeleteCredential(ctx context.Context, email, uid string) error {
	key := normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[key]; ok && c.UID == uid {
		delete(s.creds, key)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func decodeDocument(raw []byte) (*core.UserDocument, error) {
	var doc core.UserDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func cloneDocument(doc *core.UserDocument) (*core.UserDocument, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return decodeDocument(raw)
}
