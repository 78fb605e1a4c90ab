package mock_backend

import (
	"context"
	"sort"
	"sync"

	"promo-video-api/domain"
)

// MemoryJobStore keeps jobs in a map and enforces the same version
// compare-and-swap contract as the persistent stores. OnGet, when set, runs
// after every read and lets tests stage interleavings between readers.
type MemoryJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	OnGet func(job *domain.Job)
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Version = 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	stored, ok := s.jobs[id]
	var clone *domain.Job
	if ok {
		clone = stored.Clone()
	}
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if s.OnGet != nil {
		s.OnGet(clone)
	}
	return clone, nil
}

func (s *MemoryJobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Version != job.Version {
		return domain.ErrConcurrencyConflict
	}
	job.Version++
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) ListProcessingByUser(_ context.Context, userID string) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.UserID == userID && job.Stage.Generating() {
			jobs = append(jobs, job.Clone())
		}
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *MemoryJobStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.UserID == userID {
			jobs = append(jobs, job.Clone())
		}
	}
	sortJobs(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func sortJobs(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}

type MemoryBatchStore struct {
	mu       sync.Mutex
	variants map[string]*domain.BatchVariant
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{variants: make(map[string]*domain.BatchVariant)}
}

func (s *MemoryBatchStore) CreateVariant(_ context.Context, variant *domain.BatchVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	variant.Version = 1
	s.variants[variant.ID] = variant.Clone()
	return nil
}

func (s *MemoryBatchStore) GetVariant(_ context.Context, id string) (*domain.BatchVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	return stored.Clone(), nil
}

func (s *MemoryBatchStore) UpdateVariant(_ context.Context, variant *domain.BatchVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.variants[variant.ID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if stored.Version != variant.Version {
		return domain.ErrConcurrencyConflict
	}
	variant.Version++
	s.variants[variant.ID] = variant.Clone()
	return nil
}

func (s *MemoryBatchStore) ListVariantsByJob(_ context.Context, jobID string) ([]*domain.BatchVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variants := make([]*domain.BatchVariant, 0)
	for _, variant := range s.variants {
		if variant.JobID == jobID {
			variants = append(variants, variant.Clone())
		}
	}
	sort.Slice(variants, func(i, j int) bool {
		if variants[i].Attempt != variants[j].Attempt {
			return variants[i].Attempt < variants[j].Attempt
		}
		return variants[i].Index < variants[j].Index
	})
	return variants, nil
}

// MemoryLedgerStore is an append-only in-memory transaction log ordered by
// insertion.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries []*domain.CreditTransaction
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{}
}

func (s *MemoryLedgerStore) Append(_ context.Context, tx *domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *tx
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *MemoryLedgerStore) LatestBalance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			return s.entries[i].BalanceAfter, nil
		}
	}
	return 0, nil
}

func (s *MemoryLedgerStore) FindByReason(_ context.Context, userID string, reasonRef string, charge bool) (*domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.entries {
		if tx.UserID != userID || tx.ReasonRef != reasonRef {
			continue
		}
		if tx.IsCharge() == charge {
			clone := *tx
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryLedgerStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := make([]*domain.CreditTransaction, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID != userID {
			continue
		}
		clone := *s.entries[i]
		txs = append(txs, &clone)
		if limit > 0 && len(txs) == limit {
			break
		}
	}
	return txs, nil
}

// Transactions returns every entry for a user in append order.
func (s *MemoryLedgerStore) Transactions(userID string) []*domain.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := make([]*domain.CreditTransaction, 0)
	for _, tx := range s.entries {
		if tx.UserID == userID {
			clone := *tx
			txs = append(txs, &clone)
		}
	}
	return txs
}
