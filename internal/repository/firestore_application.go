package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const applicationsCollection = "applications"

// Document field names, shared with the web client that wrote the legacy data.
const (
	fieldCompany     = "company"
	fieldPosition    = "position"
	fieldLocation    = "location"
	fieldStatus      = "status"
	fieldDate        = "date"
	fieldSalaryRange = "salaryRange"
	fieldUserID      = "userId"
	fieldCreatedAt   = "createdAt"
	fieldUpdatedAt   = "updatedAt"
)

type firestoreApplicationRepository struct {
	client *firestore.Client
}

func NewFirestoreApplication(client *firestore.Client) domain.ApplicationRepository {
	return &firestoreApplicationRepository{client: client}
}

func (f *firestoreApplicationRepository) collection() *firestore.CollectionRef {
	return f.client.Collection(applicationsCollection)
}

// List implements domain.ApplicationRepository.
func (f *firestoreApplicationRepository) List(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
	domain.MustOwner(ownerID)
	iter := f.collection().
		Where(fieldUserID, "==", ownerID).
		OrderBy(fieldCreatedAt, firestore.Desc).
		Limit(domain.ListLimit).
		Documents(ctx)
	defer iter.Stop()

	records := make([]domain.ApplicationRecord, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
		}
		rec := recordFromDocument(doc.Ref.ID, doc.Data(), doc.CreateTime)
		if rec.OwnerUserID != ownerID {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Create implements domain.ApplicationRepository.
func (f *firestoreApplicationRepository) Create(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error) {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return "", err
	}
	ref, _, err := f.collection().Add(ctx, map[string]any{
		fieldCompany:     fields.Company,
		fieldPosition:    fields.Position,
		fieldLocation:    fields.Location,
		fieldStatus:      string(fields.Status),
		fieldDate:        date.String(),
		fieldSalaryRange: fields.SalaryRange,
		fieldUserID:      ownerID,
		fieldCreatedAt:   firestore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
	}
	return ref.ID, nil
}

// Update implements domain.ApplicationRepository. createdAt is never resent.
func (f *firestoreApplicationRepository) Update(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) error {
	domain.MustOwner(ownerID)
	fields, date, err := fields.Prepare()
	if err != nil {
		return err
	}
	ref := f.collection().Doc(recordID)
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := checkOwner(tx, ref, ownerID); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: fieldCompany, Value: fields.Company},
			{Path: fieldPosition, Value: fields.Position},
			{Path: fieldLocation, Value: fields.Location},
			{Path: fieldStatus, Value: string(fields.Status)},
			{Path: fieldDate, Value: date.String()},
			{Path: fieldSalaryRange, Value: fields.SalaryRange},
			{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWriteFailed, err)
	}
	return nil
}

// Delete implements domain.ApplicationRepository.
func (f *firestoreApplicationRepository) Delete(ctx context.Context, ownerID string, recordID string) error {
	domain.MustOwner(ownerID)
	ref := f.collection().Doc(recordID)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := checkOwner(tx, ref, ownerID); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeleteFailed, err)
	}
	return nil
}

// checkOwner stands in for the security rules the Admin SDK bypasses.
func checkOwner(tx *firestore.Transaction, ref *firestore.DocumentRef, ownerID string) error {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	owner, _ := snap.Data()[fieldUserID].(string)
	if owner != ownerID {
		return domain.ErrNotFound
	}
	return nil
}

// recordFromDocument maps untyped document data onto a record. Older
// documents may lack a date, store createdAt as an ISO string, or carry no
// usable status; those get the same defaults the web client applied.
func recordFromDocument(id string, data map[string]any, createTime time.Time) domain.ApplicationRecord {
	rec := domain.ApplicationRecord{
		ID:          id,
		OwnerUserID: stringField(data, fieldUserID),
		Company:     stringField(data, fieldCompany),
		Position:    stringField(data, fieldPosition),
		Location:    stringField(data, fieldLocation),
		Status:      statusOrDefault(stringField(data, fieldStatus)),
		SalaryRange: stringField(data, fieldSalaryRange),
		CreatedAt:   createTime,
	}
	if t, ok := timeField(data, fieldCreatedAt); ok {
		rec.CreatedAt = t
	}
	if t, ok := timeField(data, fieldUpdatedAt); ok {
		rec.UpdatedAt = &t
	}
	if date, err := civil.ParseDate(stringField(data, fieldDate)); err == nil {
		rec.DateApplied = date
	} else {
		rec.DateApplied = civil.DateOf(rec.CreatedAt.UTC())
	}
	return rec
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func timeField(data map[string]any, key string) (time.Time, bool) {
	switch v := data[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}
