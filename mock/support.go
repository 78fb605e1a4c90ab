package mock_backend

import (
	"context"
	"fmt"
	"sync"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

// LinkResolver serves product info from a fixed table keyed by URL. Unknown
// URLs resolve to a LinkParseError unless Err overrides the whole call.
type LinkResolver struct {
	mu       sync.Mutex
	products map[string]*domain.ProductInfo
	Err      error
}

func NewLinkResolver() *LinkResolver {
	return &LinkResolver{products: make(map[string]*domain.ProductInfo)}
}

func (r *LinkResolver) Put(url string, product *domain.ProductInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[url] = product
}

func (r *LinkResolver) Resolve(_ context.Context, rawURL string) (*domain.ProductInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	product, ok := r.products[rawURL]
	if !ok {
		return nil, &outbound.LinkParseError{URL: rawURL, Detail: "no product data"}
	}
	clone := *product
	return &clone, nil
}

// Archiver records archive calls and returns deterministic refs.
type Archiver struct {
	mu    sync.Mutex
	calls []string
	Err   error
}

func NewArchiver() *Archiver {
	return &Archiver{}
}

func (a *Archiver) Archive(_ context.Context, jobID string, variantIndex int, resultRef string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	ref := fmt.Sprintf("archive://%s/variant-%d", jobID, variantIndex)
	a.calls = append(a.calls, resultRef)
	return ref, nil
}

func (a *Archiver) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// SyncDispatcher runs submitted tasks inline, keeping tests deterministic.
type SyncDispatcher struct{}

func (SyncDispatcher) Submit(task func()) error {
	task()
	return nil
}

// StaticPricing is a fixed fee schedule for tests.
type StaticPricing struct {
	FreeScriptAttempts int
	ScriptRewriteFee   int64
	ReferenceImageFee  int64
	VideoVariantFee    int64
}

func (p StaticPricing) ScriptFee(attempt int) int64 {
	if attempt <= p.FreeScriptAttempts {
		return 0
	}
	return p.ScriptRewriteFee
}

func (p StaticPricing) ReferenceImageCost() int64 {
	return p.ReferenceImageFee
}

func (p StaticPricing) VideoVariantCost() int64 {
	return p.VideoVariantFee
}
