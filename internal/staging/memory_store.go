package staging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// MemoryStore is an in-memory Store with the same semantics as the
// PostgreSQL implementation. Used in tests and for single-process demos;
// the mutex plays the role of the database transaction.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]*models.VoucherRecord
	active  map[string]uint // serial -> record ID of the active holder
	batches map[string]*models.Batch
}

// NewMemoryStore creates an empty in-memory staging store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uint]*models.VoucherRecord),
		active:  make(map[string]uint),
		batches: make(map[string]*models.Batch),
	}
}

func (s *MemoryStore) insert(rec *models.VoucherRecord) {
	s.nextID++
	rec.ID = s.nextID
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	clone := *rec
	s.records[rec.ID] = &clone
}

func (s *MemoryStore) Put(_ context.Context, rec *models.VoucherRecord) error {
	if rec.Status != models.StatusValidated {
		return apperrors.TransitionError(rec.SerialNumber, string(rec.Status), string(models.StatusStaged))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.active[rec.SerialNumber]; taken {
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateSerial, rec.SerialNumber)
	}

	rec.Status = models.StatusStaged
	s.insert(rec)
	s.active[rec.SerialNumber] = rec.ID
	return nil
}

func (s *MemoryStore) SaveRejected(_ context.Context, rec *models.VoucherRecord) error {
	if rec.Status != models.StatusRejected {
		return apperrors.TransitionError(rec.SerialNumber, string(rec.Status), string(models.StatusRejected))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, serial string) (models.VoucherRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActiveLocked(serial)
}

func (s *MemoryStore) getActiveLocked(serial string) (models.VoucherRecord, error) {
	id, ok := s.active[serial]
	if !ok {
		return models.VoucherRecord{}, apperrors.ErrNotFound
	}
	return *s.records[id], nil
}

func (s *MemoryStore) ListBatch(_ context.Context, batchID string) ([]models.VoucherRecord, error) {
	return s.list(func(rec *models.VoucherRecord) bool {
		return rec.BatchID == batchID
	}), nil
}

func (s *MemoryStore) ListBatchByStatus(_ context.Context, batchID string, status models.Status) ([]models.VoucherRecord, error) {
	return s.list(func(rec *models.VoucherRecord) bool {
		return rec.BatchID == batchID && rec.Status == status
	}), nil
}

func (s *MemoryStore) list(keep func(*models.VoucherRecord) bool) []models.VoucherRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.VoucherRecord
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) HasActiveSerial(_ context.Context, serial string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[serial]
	return ok, nil
}

func (s *MemoryStore) MarkPreviewed(ctx context.Context, serial string) error {
	return s.transition(serial, models.StatusPreviewed, "", models.StatusStaged)
}

func (s *MemoryStore) MarkRejected(ctx context.Context, serial, reason string) error {
	return s.transition(serial, models.StatusRejected, reason, models.StatusStaged)
}

func (s *MemoryStore) MarkCommitted(ctx context.Context, serial string) error {
	return s.transition(serial, models.StatusCommitted, "", models.StatusPreviewed)
}

func (s *MemoryStore) MarkCommitFailed(ctx context.Context, serial, reason string) error {
	return s.transition(serial, models.StatusCommitFailed, reason, models.StatusPreviewed)
}

func (s *MemoryStore) RetryCommitFailed(ctx context.Context, serial string) error {
	return s.transition(serial, models.StatusStaged, "", models.StatusCommitFailed)
}

func (s *MemoryStore) transition(serial string, to models.Status, reason string, from ...models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[serial]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec := s.records[id]

	allowed := false
	for _, f := range from {
		if rec.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.TransitionError(serial, string(rec.Status), string(to))
	}

	rec.Status = to
	rec.RejectionReason = reason
	rec.UpdatedAt = time.Now().UTC()
	if to == models.StatusRejected {
		// a review rejection releases the serial number
		delete(s.active, serial)
	}
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := false
	for id, rec := range s.records {
		if rec.SerialNumber != serial {
			continue
		}
		if rec.Status == models.StatusCommitted || rec.Status == models.StatusRejected {
			delete(s.records, id)
			if s.active[serial] == id {
				delete(s.active, serial)
			}
			purged = true
		}
	}
	if !purged {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		terminal := rec.Status == models.StatusCommitted || rec.Status == models.StatusRejected
		if terminal && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			if s.active[rec.SerialNumber] == id {
				delete(s.active, rec.SerialNumber)
			}
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateBatch(_ context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ReviewStatus == "" {
		batch.ReviewStatus = models.ReviewPending
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	clone := *batch
	s.batches[batch.ID] = &clone
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return models.Batch{}, apperrors.ErrNotFound
	}
	return *batch, nil
}

func (s *MemoryStore) UpdateBatchReview(_ context.Context, id string, status models.ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	batch.ReviewStatus = status
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AddBatchRecords(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	batch.RecordCount += delta
	return nil
}

func (s *MemoryStore) Report(ctx context.Context, batchID string) (models.BatchReport, error) {
	recs, _ := s.ListBatch(ctx, batchID)
	return buildReport(batchID, recs), nil
}
