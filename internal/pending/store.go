// Package pending holds extracted batches awaiting review. Entries expire
// after an idle period; reads refresh the expiry.
package pending

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

const (
	DefaultTTL    = 30 * time.Minute
	DefaultShards = 16
)

// ErrNotFound is returned for unknown or expired upload IDs.
var ErrNotFound = errors.New("pending batch not found")

// Store is a sharded TTL map of PendingBatch values keyed by upload ID.
// Operations on keys in different shards never contend.
type Store struct {
	ttl    time.Duration
	shards []*shard
}

type shard struct {
	items *cache.Cache

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Store. Non-positive arguments use the defaults.
func New(ttl time.Duration, shards int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Store{ttl: ttl, shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{
			items: cache.New(ttl, ttl),
			locks: make(map[string]*keyLock),
		}
	}
	return s
}

// TTL returns the idle expiry.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) shard(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Put stores a copy of batch under batch.UploadID, replacing any existing
// entry, and sets its expiry.
func (s *Store) Put(batch *domain.PendingBatch) error {
	if batch == nil || batch.UploadID == "" {
		return fmt.Errorf("Put: batch has no upload id")
	}
	b := batch.Clone()
	b.ExpiresAt = time.Now().Add(s.ttl)
	s.shard(b.UploadID).items.SetDefault(b.UploadID, b)
	return nil
}

// Get returns a copy of the batch and pushes its expiry back by the TTL.
func (s *Store) Get(id string) (*domain.PendingBatch, error) {
	sh := s.shard(id)
	v, ok := sh.items.Get(id)
	if !ok {
		return nil, fmt.Errorf("Get: %s: %w", id, ErrNotFound)
	}
	b := v.(*domain.PendingBatch).Clone()
	b.ExpiresAt = time.Now().Add(s.ttl)
	// Replace fails once the key is gone, so a concurrent Remove sticks.
	if err := sh.items.Replace(id, b.Clone(), cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("Get: %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// Remove deletes the batch. Removing an unknown ID is not an error.
func (s *Store) Remove(id string) {
	s.shard(id).items.Delete(id)
}

// Len returns the number of stored batches, possibly including expired ones
// not yet swept.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.items.ItemCount()
	}
	return n
}

// Lock serializes compound operations on one upload ID, such as
// get-persist-remove on confirm. It returns the unlock function. Put, Get
// and Remove do not take this lock.
func (s *Store) Lock(id string) (unlock func()) {
	sh := s.shard(id)

	sh.mu.Lock()
	kl, ok := sh.locks[id]
	if !ok {
		kl = &keyLock{}
		sh.locks[id] = kl
	}
	kl.refs++
	sh.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		sh.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(sh.locks, id)
		}
		sh.mu.Unlock()
	}
}
