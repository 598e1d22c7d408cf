package pipeline

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/persist"
)

// MockTextExtractor is a TextExtractor backed by a function.
type MockTextExtractor struct {
	ExtractPagesFunc func(data []byte) ([]string, error)
}

func (m *MockTextExtractor) ExtractPages(data []byte) ([]string, error) {
	if m.ExtractPagesFunc != nil {
		return m.ExtractPagesFunc(data)
	}
	return nil, nil
}

func pagesOf(pages ...string) *MockTextExtractor {
	return &MockTextExtractor{ExtractPagesFunc: func([]byte) ([]string, error) { return pages, nil }}
}

type extractCall struct {
	Bank        string
	AccountType string
	Pages       int
}

// MockLLM implements GenerativeExtractor and Categorizer.
type MockLLM struct {
	ExtractFunc    func(ctx context.Context, pages []string, bank, accountType string) (string, error)
	CategorizeFunc func(ctx context.Context, description string, amount decimal.Decimal, allowed []string) (string, error)

	mu          sync.Mutex
	extracts    []extractCall
	categorized []string
}

func (m *MockLLM) Extract(ctx context.Context, pages []string, bank, accountType string) (string, error) {
	m.mu.Lock()
	m.extracts = append(m.extracts, extractCall{Bank: bank, AccountType: accountType, Pages: len(pages)})
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, pages, bank, accountType)
	}
	return "[]", nil
}

func (m *MockLLM) Categorize(ctx context.Context, description string, amount decimal.Decimal, allowed []string) (string, error) {
	m.mu.Lock()
	m.categorized = append(m.categorized, description)
	m.mu.Unlock()
	if m.CategorizeFunc != nil {
		return m.CategorizeFunc(ctx, description, amount, allowed)
	}
	return "Other", nil
}

func (m *MockLLM) Extracts() []extractCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]extractCall(nil), m.extracts...)
}

func (m *MockLLM) Categorized() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.categorized...)
}

// MockSink is a persist.Sink backed by a function.
type MockSink struct {
	SaveFunc func(ctx context.Context, h persist.Handoff) error
}

func (m *MockSink) Save(ctx context.Context, h persist.Handoff) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, h)
	}
	return nil
}

// MockFetcher is a gcs.Fetcher backed by a function.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, uri string) ([]byte, error)
}

func (m *MockFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, uri)
	}
	return nil, nil
}
