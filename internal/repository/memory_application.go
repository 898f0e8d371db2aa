package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/google/uuid"
)

// MemoryApplicationRepository keeps records in process memory. It follows
// the same contract as the remote backends and serves local development
// and tests.
type MemoryApplicationRepository struct {
	mu      sync.Mutex
	records map[string]domain.ApplicationRecord
	now     func() time.Time
}

// NewMemoryApplication creates an empty repository. now stamps creation and
// update times; nil means time.Now.
func NewMemoryApplication(now func() time.Time) *MemoryApplicationRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryApplicationRepository{
		records: make(map[string]domain.ApplicationRecord),
		now:     now,
	}
}

// List implements domain.ApplicationRepository.
func (m *MemoryApplicationRepository) List(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
	domain.MustOwner(ownerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]domain.ApplicationRecord, 0)
	for _, rec := range m.records {
		if rec.OwnerUserID == ownerID {
			records = append(records, copyRecord(rec))
		}
	}
	slices.SortFunc(records, func(a, b domain.ApplicationRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(records) > domain.ListLimit {
		records = records[:domain.ListLimit]
	}
	return records, nil
}

// Create implements domain.ApplicationRepository.
func (m *MemoryApplicationRepository) Create(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error) {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.records[id] = domain.ApplicationRecord{
		ID:          id,
		OwnerUserID: ownerID,
		Company:     fields.Company,
		Position:    fields.Position,
		Location:    fields.Location,
		Status:      fields.Status,
		DateApplied: date,
		SalaryRange: fields.SalaryRange,
		CreatedAt:   m.now(),
	}
	return id, nil
}

// Update implements domain.ApplicationRepository.
func (m *MemoryApplicationRepository) Update(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) error {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.OwnerUserID != ownerID {
		return fmt.Errorf("%w: %w", domain.ErrWriteFailed, domain.ErrNotFound)
	}
	rec.Company = fields.Company
	rec.Position = fields.Position
	rec.Location = fields.Location
	rec.Status = fields.Status
	rec.DateApplied = date
	rec.SalaryRange = fields.SalaryRange
	updatedAt := m.now()
	rec.UpdatedAt = &updatedAt
	m.records[recordID] = rec
	return nil
}

// Delete implements domain.ApplicationRepository.
func (m *MemoryApplicationRepository) Delete(ctx context.Context, ownerID string, recordID string) error {
	domain.MustOwner(ownerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.OwnerUserID != ownerID {
		return fmt.Errorf("%w: %w", domain.ErrDeleteFailed, domain.ErrNotFound)
	}
	delete(m.records, recordID)
	return nil
}

func copyRecord(rec domain.ApplicationRecord) domain.ApplicationRecord {
	if rec.UpdatedAt != nil {
		t := *rec.UpdatedAt
		rec.UpdatedAt = &t
	}
	return rec
}
