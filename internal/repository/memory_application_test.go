package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acmeFields() domain.ApplicationFields {
	return domain.ApplicationFields{
		Company:  "Acme",
		Position: "Engineer",
		Location: "Remote",
		Status:   domain.StatusApplied,
		Date:     "2024-01-05",
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestMemoryApplication_Scenario(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplication(stepClock(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)))

	fields := acmeFields()
	fields.Company = "  Acme "
	id, err := repo.Create(ctx, "alice", fields)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "alice", rec.OwnerUserID)
	assert.Equal(t, "Acme", rec.Company)
	assert.Equal(t, "Engineer", rec.Position)
	assert.Equal(t, "Remote", rec.Location)
	assert.Equal(t, domain.StatusApplied, rec.Status)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 5}, rec.DateApplied)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.UpdatedAt)

	fields = rec.Fields()
	fields.Status = domain.StatusInterview
	require.NoError(t, repo.Update(ctx, "alice", id, fields))

	records, err = repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusInterview, records[0].Status)
	require.NotNil(t, records[0].UpdatedAt)
	assert.Equal(t, rec.CreatedAt, records[0].CreatedAt)

	require.NoError(t, repo.Delete(ctx, "alice", id))
	records, err = repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryApplication_ListScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplication(stepClock(time.Now()))
	_, err := repo.Create(ctx, "alice", acmeFields())
	require.NoError(t, err)
	bobID, err := repo.Create(ctx, "bob", acmeFields())
	require.NoError(t, err)

	records, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	for _, rec := range records {
		assert.Equal(t, "alice", rec.OwnerUserID)
	}

	err = repo.Update(ctx, "alice", bobID, acmeFields())
	assert.ErrorIs(t, err, domain.ErrWriteFailed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.Delete(ctx, "alice", bobID)
	assert.ErrorIs(t, err, domain.ErrDeleteFailed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	records, err = repo.List(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryApplication_ListLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplication(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	for i := range 60 {
		fields := acmeFields()
		fields.Company = fmt.Sprintf("Company %d", i)
		_, err := repo.Create(ctx, "alice", fields)
		require.NoError(t, err)
	}

	records, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, domain.ListLimit)
	assert.Equal(t, "Company 59", records[0].Company)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt), "records must be newest first")
	}
}

func TestMemoryApplication_ValidationBeforeWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplication(nil)

	fields := acmeFields()
	fields.Location = "   "
	_, err := repo.Create(ctx, "alice", fields)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "location", ve.Field)

	records, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)

	id, err := repo.Create(ctx, "alice", acmeFields())
	require.NoError(t, err)
	fields = acmeFields()
	fields.Company = ""
	err = repo.Update(ctx, "alice", id, fields)
	assert.ErrorIs(t, err, domain.ErrValidation)

	records, err = repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme", records[0].Company)
	assert.Nil(t, records[0].UpdatedAt)
}

func TestMemoryApplication_RequiresOwner(t *testing.T) {
	repo := NewMemoryApplication(nil)
	assert.PanicsWithValue(t, domain.ErrNoIdentity, func() { _, _ = repo.List(context.Background(), "") })
	assert.PanicsWithValue(t, domain.ErrNoIdentity, func() { _, _ = repo.Create(context.Background(), "", acmeFields()) })
}
