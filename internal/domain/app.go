package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ListLimit is the maximum number of records List returns.
const ListLimit = 50

type ApplicationStatus string

const (
	StatusApplied   ApplicationStatus = "Applied"
	StatusInterview ApplicationStatus = "Interview"
	StatusOffer     ApplicationStatus = "Offer"
)

// Statuses lists every status in display order.
var Statuses = []ApplicationStatus{StatusApplied, StatusInterview, StatusOffer}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusApplied, StatusInterview, StatusOffer:
		return true
	}
	return false
}

// ApplicationRecord is one tracked job application, owned by exactly one identity.
type ApplicationRecord struct {
	ID          string
	OwnerUserID string
	Company     string
	Position    string
	Location    string
	Status      ApplicationStatus
	DateApplied civil.Date
	SalaryRange string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Fields returns the editable part of the record.
func (a ApplicationRecord) Fields() ApplicationFields {
	date := ""
	if a.DateApplied.IsValid() {
		date = a.DateApplied.String()
	}
	return ApplicationFields{
		Company:     a.Company,
		Position:    a.Position,
		Location:    a.Location,
		Status:      a.Status,
		Date:        date,
		SalaryRange: a.SalaryRange,
	}
}

// ApplicationFields are the user supplied values of a record, as typed into a form.
type ApplicationFields struct {
	Company     string
	Position    string
	Location    string
	Status      ApplicationStatus
	Date        string // YYYY-MM-DD
	SalaryRange string
}

// Normalize trims every free-text field.
func (f ApplicationFields) Normalize() ApplicationFields {
	f.Company = strings.TrimSpace(f.Company)
	f.Position = strings.TrimSpace(f.Position)
	f.Location = strings.TrimSpace(f.Location)
	f.Date = strings.TrimSpace(f.Date)
	f.SalaryRange = strings.TrimSpace(f.SalaryRange)
	return f
}

// Validate checks the fields without touching them. Whitespace-only values
// count as empty.
func (f ApplicationFields) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"company", f.Company},
		{"position", f.Position},
		{"location", f.Location},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: fmt.Sprintf("%s is required", r.field)}
		}
	}
	if !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
	}
	if _, err := civil.ParseDate(strings.TrimSpace(f.Date)); err != nil {
		return &ValidationError{Field: "date", Message: "date must be a calendar date (YYYY-MM-DD)"}
	}
	return nil
}

// Prepare normalizes and validates the fields, returning the parsed date.
// Every repository backend calls it before any remote write.
func (f ApplicationFields) Prepare() (ApplicationFields, civil.Date, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, civil.Date{}, err
	}
	date, _ := civil.ParseDate(f.Date)
	return f, date, nil
}

// ApplicationRepository stores application records scoped to their owner.
// Calling any method with an empty ownerID is a programming error.
type ApplicationRepository interface {
	// List returns up to ListLimit records owned by ownerID, newest first.
	List(ctx context.Context, ownerID string) ([]ApplicationRecord, error)
	// Create stores a new record and returns its assigned id.
	Create(ctx context.Context, ownerID string, fields ApplicationFields) (string, error)
	Update(ctx context.Context, ownerID string, recordID string, fields ApplicationFields) error
	Delete(ctx context.Context, ownerID string, recordID string) error
}

// MustOwner panics when a record operation is attempted without an identity.
func MustOwner(ownerID string) {
	if ownerID == "" {
		panic(ErrNoIdentity)
	}
}
