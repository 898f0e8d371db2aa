package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
)

type postgresApplicationRepository struct {
	conn Connection
}

func NewPostgresApplication(conn Connection) domain.ApplicationRepository {
	return &postgresApplicationRepository{conn: conn}
}

type applicationDto struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	Company     string     `db:"company"`
	Position    string     `db:"position"`
	Location    string     `db:"location"`
	Status      string     `db:"status"`
	DateApplied *time.Time `db:"date_applied"`
	SalaryRange string     `db:"salary_range"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at"`
}

func mapDtoApplication(dto applicationDto) domain.ApplicationRecord {
	rec := domain.ApplicationRecord{
		ID:          dto.ID,
		OwnerUserID: dto.UserID,
		Company:     dto.Company,
		Position:    dto.Position,
		Location:    dto.Location,
		Status:      statusOrDefault(dto.Status),
		SalaryRange: dto.SalaryRange,
		CreatedAt:   dto.CreatedAt,
		UpdatedAt:   dto.UpdatedAt,
	}
	if dto.DateApplied != nil {
		rec.DateApplied = civil.DateOf(*dto.DateApplied)
	} else {
		rec.DateApplied = civil.DateOf(dto.CreatedAt.UTC())
	}
	return rec
}

// List implements domain.ApplicationRepository.
func (p *postgresApplicationRepository) List(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
	domain.MustOwner(ownerID)
	dtos := make([]applicationDto, 0)
	query := `
		SELECT id, user_id, company, position, location, status, date_applied, salary_range, created_at, updated_at
		FROM applications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	err := pgxscan.Select(ctx, p.conn, &dtos, query, ownerID, domain.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	records := make([]domain.ApplicationRecord, 0, len(dtos))
	for _, dto := range dtos {
		records = append(records, mapDtoApplication(dto))
	}
	return records, nil
}

// Create implements domain.ApplicationRepository.
func (p *postgresApplicationRepository) Create(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error) {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	query := `
		INSERT INTO applications (id, user_id, company, position, location, status, date_applied, salary_range, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, NOW())`
	_, err = p.conn.Exec(ctx, query, id, ownerID, fields.Company, fields.Position, fields.Location, string(fields.Status), date.String(), fields.SalaryRange)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
	}
	return id, nil
}

// Update implements domain.ApplicationRepository.
func (p *postgresApplicationRepository) Update(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) error {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return err
	}
	query := `
		UPDATE applications
		SET company = $1, position = $2, location = $3, status = $4, date_applied = $5::date, salary_range = $6, updated_at = NOW()
		WHERE id = $7 AND user_id = $8`
	tag, err := p.conn.Exec(ctx, query, fields.Company, fields.Position, fields.Location, string(fields.Status), date.String(), fields.SalaryRange, recordID, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", domain.ErrWriteFailed, domain.ErrNotFound)
	}
	return nil
}

// Delete implements domain.ApplicationRepository.
func (p *postgresApplicationRepository) Delete(ctx context.Context, ownerID string, recordID string) error {
	domain.MustOwner(ownerID)
	tag, err := p.conn.Exec(ctx, "DELETE FROM applications WHERE id = $1 AND user_id = $2", recordID, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeleteFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w", domain.ErrDeleteFailed, domain.ErrNotFound)
	}
	return nil
}

func statusOrDefault(s string) domain.ApplicationStatus {
	status := domain.ApplicationStatus(s)
	if !status.Valid() {
		return domain.StatusApplied
	}
	return status
}
