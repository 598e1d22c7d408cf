// Package persist hands confirmed transactions to durable storage.
package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// Handoff is one confirmed batch.
type Handoff struct {
	UploadID    string
	Profile     domain.StatementProfile
	BankName    string
	AccountName string
	Candidates  []domain.TransactionCandidate
	ConfirmedAt time.Time
}

// Sink stores confirmed batches. Save must either store every candidate or
// return an error.
type Sink interface {
	Save(ctx context.Context, h Handoff) error
}

// MemorySink keeps handoffs in memory. It is used by the CLI and tests and as
// the default when no warehouse is configured.
type MemorySink struct {
	mu       sync.RWMutex
	handoffs map[string][]Handoff
}

// Ensure MemorySink implements Sink.
var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{handoffs: make(map[string][]Handoff)}
}

// Save implements Sink.
func (s *MemorySink) Save(ctx context.Context, h Handoff) error {
	if h.UploadID == "" {
		return fmt.Errorf("MemorySink.Save: handoff has no upload id")
	}
	h.Candidates = domain.CloneCandidates(h.Candidates)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs[h.UploadID] = append(s.handoffs[h.UploadID], h)
	return nil
}

// Handoffs returns copies of everything saved for uploadID.
func (s *MemorySink) Handoffs(uploadID string) []Handoff {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Handoff, 0, len(s.handoffs[uploadID]))
	for _, h := range s.handoffs[uploadID] {
		h.Candidates = domain.CloneCandidates(h.Candidates)
		out = append(out, h)
	}
	return out
}

// Count returns the number of transactions saved across all uploads.
func (s *MemorySink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, hs := range s.handoffs {
		for _, h := range hs {
			n += len(h.Candidates)
		}
	}
	return n
}
