package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
	"github.com/samber/lo"
)

const (
	MsgFetchFailed  = "Failed to load applications. Please try again."
	MsgSaveFailed   = "Failed to save application. Please try again."
	MsgDeleteFailed = "Failed to delete application. Please try again."
	MsgMissingField = "Please fill in all required fields."
)

var (
	ErrNoDraft = errors.New("no draft open")
	ErrBusy    = errors.New("a submit is already in flight")
)

// Themes lists the selectable themes, default first.
var Themes = []string{"dracula", "light"}

// Confirmer is asked before a record is deleted. Returning false cancels.
type Confirmer func(record domain.ApplicationRecord) bool

// Draft is the one record being created or edited.
type Draft struct {
	// RecordID is empty for a new record.
	RecordID string
	Fields   domain.ApplicationFields
	Invalid  *domain.ValidationError
}

func (d Draft) Editing() bool {
	return d.RecordID != ""
}

type StatusCount struct {
	Status domain.ApplicationStatus
	Count  int
}

// View is a rendered snapshot of the dashboard.
type View struct {
	Email   string
	Search  string
	Loaded  bool
	Records []domain.ApplicationRecord // filtered by Search
	Total   int                        // unfiltered
	Stats   []StatusCount              // unfiltered, one per status
	Draft   *Draft
	Error   string
	Theme   string
}

// Dashboard keeps the signed in user's records in sync with the repository.
// Remote calls run without the lock held; a fetch result is applied only if
// no newer fetch was dispatched in the meantime.
type Dashboard struct {
	logger *slog.Logger
	repo   domain.ApplicationRepository
	now    func() time.Time

	mu         sync.Mutex
	owner      string
	email      string
	records    []domain.ApplicationRecord
	loaded     bool
	search     string
	draft      *Draft
	errMsg     string
	submitting bool
	fetchSeq   uint64
	theme      string
}

func New(logger *slog.Logger, repo domain.ApplicationRepository) *Dashboard {
	return &Dashboard{
		logger: logger,
		repo:   repo,
		now:    time.Now,
		theme:  Themes[0],
	}
}

// Watch follows session snapshots until ctx ends or the channel closes.
func (d *Dashboard) Watch(ctx context.Context, sessions <-chan session.Session) {
	for s := range sessions {
		if s.Loading {
			continue
		}
		d.SetIdentity(ctx, s.Identity)
	}
}

// SetIdentity switches the dashboard to identity. A new identity triggers a
// fetch; a nil identity clears everything.
func (d *Dashboard) SetIdentity(ctx context.Context, identity *domain.Identity) {
	d.mu.Lock()
	if identity == nil {
		if d.owner != "" {
			d.logger.Info("clearing dashboard", "uid", d.owner)
		}
		d.reset()
		d.mu.Unlock()
		return
	}
	d.email = identity.Email
	if identity.UID == d.owner {
		d.mu.Unlock()
		return
	}
	d.reset()
	d.owner = identity.UID
	d.email = identity.Email
	d.mu.Unlock()

	d.Refresh(ctx)
}

// reset must be called with d.mu held. Bumping fetchSeq drops in-flight fetches.
func (d *Dashboard) reset() {
	d.owner = ""
	d.email = ""
	d.records = nil
	d.loaded = false
	d.search = ""
	d.draft = nil
	d.errMsg = ""
	d.fetchSeq++
}

// Refresh re-fetches the record set. On failure the previous records stay
// and the error slot is set. It reports whether fresh records were applied.
func (d *Dashboard) Refresh(ctx context.Context) bool {
	d.mu.Lock()
	owner := d.owner
	if owner == "" {
		d.mu.Unlock()
		return false
	}
	d.fetchSeq++
	seq := d.fetchSeq
	d.mu.Unlock()

	records, err := d.repo.List(ctx, owner)

	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.fetchSeq {
		d.logger.Debug("discarding stale fetch", "uid", owner, "seq", seq, "latest", d.fetchSeq)
		return false
	}
	if err != nil {
		d.logger.Error("failed to fetch applications", "error", err, "uid", owner)
		d.errMsg = MsgFetchFailed
		return false
	}
	d.records = records
	d.loaded = true
	d.errMsg = ""
	return true
}

func (d *Dashboard) SetSearch(term string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.search = term
}

// StartCreate opens a draft for a new record dated today.
func (d *Dashboard) StartCreate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draft = &Draft{Fields: domain.ApplicationFields{
		Status: domain.StatusApplied,
		Date:   d.today(),
	}}
	d.errMsg = ""
}

// StartEdit opens a draft copied from the loaded record with id recordID.
func (d *Dashboard) StartEdit(recordID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.findLocked(recordID)
	if !ok {
		return domain.ErrNotFound
	}
	fields := rec.Fields()
	if fields.Date == "" {
		fields.Date = d.today()
	}
	d.draft = &Draft{RecordID: rec.ID, Fields: fields}
	d.errMsg = ""
	return nil
}

// UpdateDraft replaces the open draft's field values.
func (d *Dashboard) UpdateDraft(fields domain.ApplicationFields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft == nil {
		return ErrNoDraft
	}
	d.draft.Fields = fields
	return nil
}

func (d *Dashboard) CancelDraft() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draft = nil
}

// SubmitDraft validates the open draft and writes it through the repository,
// then re-fetches and closes the draft. Invalid drafts never reach the
// repository; a failed write leaves the draft open.
func (d *Dashboard) SubmitDraft(ctx context.Context) error {
	d.mu.Lock()
	if d.draft == nil {
		d.mu.Unlock()
		return ErrNoDraft
	}
	if d.submitting {
		d.mu.Unlock()
		return ErrBusy
	}
	if err := d.draft.Fields.Validate(); err != nil {
		var ve *domain.ValidationError
		errors.As(err, &ve)
		d.draft.Invalid = ve
		d.errMsg = MsgMissingField
		if ve != nil && (ve.Field == "status" || ve.Field == "date") {
			d.errMsg = ve.Message
		}
		d.mu.Unlock()
		return err
	}
	draft := *d.draft
	draft.Invalid = nil
	d.draft.Invalid = nil
	owner := d.owner
	d.submitting = true
	d.errMsg = ""
	d.mu.Unlock()

	var err error
	if draft.Editing() {
		err = d.repo.Update(ctx, owner, draft.RecordID, draft.Fields)
	} else {
		_, err = d.repo.Create(ctx, owner, draft.Fields)
	}

	d.mu.Lock()
	d.submitting = false
	if err != nil {
		d.logger.Error("failed to save application", "error", err, "uid", owner, "record", draft.RecordID)
		d.errMsg = MsgSaveFailed
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	d.Refresh(ctx)

	d.mu.Lock()
	d.draft = nil
	d.mu.Unlock()
	return nil
}

// RequestDelete deletes the loaded record recordID once confirm agrees, then
// re-fetches. It reports whether the record was deleted.
func (d *Dashboard) RequestDelete(ctx context.Context, recordID string, confirm Confirmer) (bool, error) {
	d.mu.Lock()
	rec, ok := d.findLocked(recordID)
	owner := d.owner
	d.mu.Unlock()
	if !ok {
		return false, domain.ErrNotFound
	}
	if confirm == nil || !confirm(rec) {
		return false, nil
	}

	if err := d.repo.Delete(ctx, owner, recordID); err != nil {
		d.logger.Error("failed to delete application", "error", err, "uid", owner, "record", recordID)
		d.mu.Lock()
		d.errMsg = MsgDeleteFailed
		d.mu.Unlock()
		return false, err
	}
	d.mu.Lock()
	d.errMsg = ""
	d.mu.Unlock()

	d.Refresh(ctx)
	return true, nil
}

// Records returns the loaded records, unfiltered.
func (d *Dashboard) Records() []domain.ApplicationRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.records)
}

// Record returns the loaded record with id recordID.
func (d *Dashboard) Record(recordID string) (domain.ApplicationRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(recordID)
}

// SetTheme selects one of Themes for the rest of the browser session.
func (d *Dashboard) SetTheme(theme string) bool {
	if !slices.Contains(Themes, theme) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.theme = theme
	return true
}

func (d *Dashboard) Theme() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.theme
}

func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := View{
		Email:   d.email,
		Search:  d.search,
		Loaded:  d.loaded,
		Records: Filter(d.records, d.search),
		Total:   len(d.records),
		Stats:   Stats(d.records),
		Error:   d.errMsg,
		Theme:   d.theme,
	}
	if d.draft != nil {
		draft := *d.draft
		v.Draft = &draft
	}
	return v
}

func (d *Dashboard) findLocked(recordID string) (domain.ApplicationRecord, bool) {
	return lo.Find(d.records, func(rec domain.ApplicationRecord) bool {
		return rec.ID == recordID
	})
}

func (d *Dashboard) today() string {
	return civil.DateOf(d.now()).String()
}

// Filter keeps records whose company or position contains term, ignoring
// case. The term is used as typed, surrounding spaces included. An empty
// term keeps everything.
func Filter(records []domain.ApplicationRecord, term string) []domain.ApplicationRecord {
	term = strings.ToLower(term)
	if term == "" {
		return slices.Clone(records)
	}
	return lo.Filter(records, func(rec domain.ApplicationRecord, _ int) bool {
		return strings.Contains(strings.ToLower(rec.Company), term) ||
			strings.Contains(strings.ToLower(rec.Position), term)
	})
}

// Stats counts records per status, in domain.Statuses order.
func Stats(records []domain.ApplicationRecord) []StatusCount {
	return lo.Map(domain.Statuses, func(status domain.ApplicationStatus, _ int) StatusCount {
		return StatusCount{
			Status: status,
			Count: lo.CountBy(records, func(rec domain.ApplicationRecord) bool {
				return rec.Status == status
			}),
		}
	})
}
