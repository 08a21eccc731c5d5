package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/presupuesto/internal/cache"
)

// ErrNotFound indicates the requested cart could not be located or has expired.
var ErrNotFound = errors.New("cart not found")

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	ID        string    `json:"id"`
	Entries   []Entry   `json:"entries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists cart snapshots by id.
type Store interface {
	Load(ctx context.Context, id string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps carts in process memory and expires them after TTL.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]memoryCart
	ttl   time.Duration
	now   func() time.Time
}

type memoryCart struct {
	snap      Snapshot
	expiresAt time.Time
}

// NewMemoryStore returns an in-memory Store. A zero ttl never expires carts.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{carts: make(map[string]memoryCart), ttl: ttl, now: time.Now}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt) {
		delete(s.carts, id)
		return Snapshot{}, ErrNotFound
	}
	c.snap.Entries = append([]Entry(nil), c.snap.Entries...)
	return c.snap, nil
}

// Save implements Store and refreshes the expiry.
func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := memoryCart{snap: snap}
	c.snap.Entries = append([]Entry(nil), snap.Entries...)
	if s.ttl > 0 {
		c.expiresAt = s.now().Add(s.ttl)
	}
	s.carts[snap.ID] = c
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	return nil
}

// RedisStore persists carts as JSON documents. Expiry comes from the JSON store TTL.
type RedisStore struct {
	Store *cache.JSON
	Keys  cache.Keys
}

// Load implements Store.
func (s RedisStore) Load(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	ok, err := s.Store.Get(ctx, s.Keys.Cart(id), &snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cart: load %s: %w", id, err)
	}
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Save implements Store.
func (s RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.Entries == nil {
		snap.Entries = []Entry{}
	}
	if err := s.Store.Set(ctx, s.Keys.Cart(snap.ID), snap); err != nil {
		return fmt.Errorf("cart: save %s: %w", snap.ID, err)
	}
	return nil
}

// Delete implements Store.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	return s.Store.Delete(ctx, s.Keys.Cart(id))
}
