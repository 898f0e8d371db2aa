package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/repository"
	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	listFn   func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error)
	createFn func(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error)
	updateFn func(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) error
	deleteFn func(ctx context.Context, ownerID string, recordID string) error

	mu    sync.Mutex
	calls []string
}

func (m *mockRepo) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockRepo) List(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
	m.record("list")
	return m.listFn(ctx, ownerID)
}

func (m *mockRepo) Create(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error) {
	m.record("create")
	return m.createFn(ctx, ownerID, fields)
}

func (m *mockRepo) Update(ctx context.Context, ownerID string, recordID string, fields domain.ApplicationFields) error {
	m.record("update")
	return m.updateFn(ctx, ownerID, recordID, fields)
}

func (m *mockRepo) Delete(ctx context.Context, ownerID string, recordID string) error {
	m.record("delete")
	return m.deleteFn(ctx, ownerID, recordID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var alice = &domain.Identity{UID: "alice", Email: "alice@example.com", EmailVerified: true}

func newTestDashboard(repo domain.ApplicationRepository) *Dashboard {
	d := New(discardLogger(), repo)
	d.now = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }
	return d
}

func submitNew(t *testing.T, d *Dashboard, fields domain.ApplicationFields) {
	t.Helper()
	d.StartCreate()
	require.NoError(t, d.UpdateDraft(fields))
	require.NoError(t, d.SubmitDraft(context.Background()))
}

func TestDashboard_Scenario(t *testing.T) {
	ctx := context.Background()
	d := newTestDashboard(repository.NewMemoryApplication(nil))
	d.SetIdentity(ctx, alice)

	v := d.View()
	assert.True(t, v.Loaded)
	assert.Empty(t, v.Records)
	assert.Equal(t, "alice@example.com", v.Email)

	d.StartCreate()
	v = d.View()
	require.NotNil(t, v.Draft)
	assert.False(t, v.Draft.Editing())
	assert.Equal(t, domain.StatusApplied, v.Draft.Fields.Status)
	assert.Equal(t, "2024-01-05", v.Draft.Fields.Date)

	require.NoError(t, d.UpdateDraft(domain.ApplicationFields{
		Company: " Acme ", Position: "Engineer", Location: "Remote",
		Status: domain.StatusApplied, Date: "2024-01-05",
	}))
	require.NoError(t, d.SubmitDraft(ctx))

	v = d.View()
	assert.Nil(t, v.Draft)
	require.Len(t, v.Records, 1)
	rec := v.Records[0]
	assert.Equal(t, "Acme", rec.Company)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, []StatusCount{{domain.StatusApplied, 1}, {domain.StatusInterview, 0}, {domain.StatusOffer, 0}}, v.Stats)

	require.NoError(t, d.StartEdit(rec.ID))
	draft := d.View().Draft
	require.NotNil(t, draft)
	assert.True(t, draft.Editing())
	fields := draft.Fields
	fields.Status = domain.StatusInterview
	require.NoError(t, d.UpdateDraft(fields))
	require.NoError(t, d.SubmitDraft(ctx))

	v = d.View()
	require.Len(t, v.Records, 1)
	assert.Equal(t, domain.StatusInterview, v.Records[0].Status)
	assert.NotNil(t, v.Records[0].UpdatedAt)

	d.SetSearch("zzz")
	v = d.View()
	assert.Empty(t, v.Records)
	assert.Equal(t, 1, v.Total)
	assert.Equal(t, 1, v.Stats[1].Count)

	deleted, err := d.RequestDelete(ctx, rec.ID, func(domain.ApplicationRecord) bool { return true })
	require.NoError(t, err)
	assert.True(t, deleted)
	v = d.View()
	assert.Empty(t, v.Records)
	assert.Equal(t, 0, v.Total)
}

func TestDashboard_InvalidDraftSkipsRepository(t *testing.T) {
	repo := &mockRepo{listFn: func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
		return nil, nil
	}}
	d := newTestDashboard(repo)
	d.SetIdentity(context.Background(), alice)

	d.StartCreate()
	require.NoError(t, d.UpdateDraft(domain.ApplicationFields{Company: "Acme", Position: "  ", Location: "Remote", Status: domain.StatusApplied, Date: "2024-01-05"}))
	err := d.SubmitDraft(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)

	v := d.View()
	require.NotNil(t, v.Draft)
	require.NotNil(t, v.Draft.Invalid)
	assert.Equal(t, "position", v.Draft.Invalid.Field)
	assert.Equal(t, MsgMissingField, v.Error)
	assert.Equal(t, []string{"list"}, repo.calls)
}

func TestDashboard_FetchFailureKeepsRecords(t *testing.T) {
	fail := false
	repo := &mockRepo{listFn: func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
		if fail {
			return nil, errors.New("unavailable")
		}
		return []domain.ApplicationRecord{{ID: "1", OwnerUserID: ownerID, Company: "Acme", Status: domain.StatusOffer}}, nil
	}}
	d := newTestDashboard(repo)
	d.SetIdentity(context.Background(), alice)
	require.Len(t, d.View().Records, 1)

	fail = true
	assert.False(t, d.Refresh(context.Background()))
	v := d.View()
	assert.Equal(t, MsgFetchFailed, v.Error)
	require.Len(t, v.Records, 1)

	fail = false
	assert.True(t, d.Refresh(context.Background()))
	assert.Empty(t, d.View().Error)
}

func TestDashboard_StaleFetchDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	call := 0
	repo := &mockRepo{listFn: func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()
		if n == 2 {
			close(started)
			<-release
			return []domain.ApplicationRecord{{ID: "old"}}, nil
		}
		return []domain.ApplicationRecord{{ID: "new"}}, nil
	}}
	d := newTestDashboard(repo)
	d.SetIdentity(context.Background(), alice)

	done := make(chan bool)
	go func() { done <- d.Refresh(context.Background()) }()
	<-started
	assert.True(t, d.Refresh(context.Background()))
	close(release)
	assert.False(t, <-done)

	v := d.View()
	require.Len(t, v.Records, 1)
	assert.Equal(t, "new", v.Records[0].ID)
}

func TestDashboard_WriteFailureKeepsDraft(t *testing.T) {
	repo := &mockRepo{
		listFn: func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) { return nil, nil },
		createFn: func(ctx context.Context, ownerID string, fields domain.ApplicationFields) (string, error) {
			return "", domain.ErrWriteFailed
		},
	}
	d := newTestDashboard(repo)
	d.SetIdentity(context.Background(), alice)

	d.StartCreate()
	require.NoError(t, d.UpdateDraft(domain.ApplicationFields{Company: "Acme", Position: "Engineer", Location: "Remote", Status: domain.StatusApplied, Date: "2024-01-05"}))
	err := d.SubmitDraft(context.Background())
	assert.ErrorIs(t, err, domain.ErrWriteFailed)

	v := d.View()
	assert.NotNil(t, v.Draft)
	assert.Equal(t, MsgSaveFailed, v.Error)

	d.StartCreate()
	assert.Empty(t, d.View().Error)
}

func TestDashboard_RequestDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryApplication(nil)
	d := newTestDashboard(repo)
	d.SetIdentity(ctx, alice)
	submitNew(t, d, domain.ApplicationFields{Company: "Acme", Position: "Engineer", Location: "Remote", Status: domain.StatusApplied, Date: "2024-01-05"})
	id := d.View().Records[0].ID

	var asked domain.ApplicationRecord
	deleted, err := d.RequestDelete(ctx, id, func(rec domain.ApplicationRecord) bool {
		asked = rec
		return false
	})
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "Acme", asked.Company)
	assert.Len(t, d.View().Records, 1)

	_, err = d.RequestDelete(ctx, "missing", func(domain.ApplicationRecord) bool { return true })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDashboard_IdentityChanges(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryApplication(nil)
	d := newTestDashboard(repo)
	d.SetIdentity(ctx, alice)
	submitNew(t, d, domain.ApplicationFields{Company: "Acme", Position: "Engineer", Location: "Remote", Status: domain.StatusApplied, Date: "2024-01-05"})
	d.StartCreate()

	d.SetIdentity(ctx, nil)
	v := d.View()
	assert.Empty(t, v.Records)
	assert.Nil(t, v.Draft)
	assert.Empty(t, v.Email)
	assert.False(t, v.Loaded)

	bob := &domain.Identity{UID: "bob", Email: "bob@example.com"}
	d.SetIdentity(ctx, bob)
	v = d.View()
	assert.True(t, v.Loaded)
	assert.Empty(t, v.Records)
}

func TestDashboard_Watch(t *testing.T) {
	repo := repository.NewMemoryApplication(nil)
	d := newTestDashboard(repo)
	sessions := make(chan session.Session, 3)
	sessions <- session.Session{Loading: true}
	sessions <- session.Session{Identity: alice}
	close(sessions)

	d.Watch(context.Background(), sessions)
	v := d.View()
	assert.True(t, v.Loaded)
	assert.Equal(t, "alice@example.com", v.Email)
}

func TestDashboard_StartEditDefaultsDate(t *testing.T) {
	repo := &mockRepo{listFn: func(ctx context.Context, ownerID string) ([]domain.ApplicationRecord, error) {
		return []domain.ApplicationRecord{{ID: "legacy", Company: "Acme", Status: domain.StatusApplied}}, nil
	}}
	d := newTestDashboard(repo)
	d.SetIdentity(context.Background(), alice)

	require.NoError(t, d.StartEdit("legacy"))
	assert.Equal(t, "2024-01-05", d.View().Draft.Fields.Date)
	assert.ErrorIs(t, d.StartEdit("missing"), domain.ErrNotFound)

	d.CancelDraft()
	assert.Nil(t, d.View().Draft)
	assert.ErrorIs(t, d.SubmitDraft(context.Background()), ErrNoDraft)
}

func TestFilterAndStats(t *testing.T) {
	records := []domain.ApplicationRecord{
		{Company: "Acme", Position: "Engineer", Status: domain.StatusApplied},
		{Company: "Globex", Position: "Senior ENGINEER", Status: domain.StatusOffer},
		{Company: "Initech", Position: "Manager", Status: domain.StatusInterview},
	}

	assert.Len(t, Filter(records, ""), 3)
	assert.Len(t, Filter(records, "engineer"), 2)
	assert.Len(t, Filter(records, "GLOB"), 1)
	assert.Empty(t, Filter(records, "zzz"))
	// spaces are part of the term
	assert.Len(t, Filter(records, " engineer"), 1)
	assert.Empty(t, Filter(records, "acme "))

	sum := 0
	for _, s := range Stats(records) {
		assert.Equal(t, 1, s.Count)
		sum += s.Count
	}
	assert.Equal(t, len(records), sum)
}

func TestDashboard_Theme(t *testing.T) {
	d := newTestDashboard(repository.NewMemoryApplication(nil))
	assert.Equal(t, "dracula", d.Theme())
	assert.True(t, d.SetTheme("light"))
	assert.False(t, d.SetTheme("neon"))
	assert.Equal(t, "light", d.View().Theme)
}
