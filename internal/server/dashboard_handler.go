package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bjarke-xyz/hire-me-maybe/internal/dashboard"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/server/html"
	"github.com/go-chi/chi/v5"
)

const (
	noticeSaved   = "Application saved successfully"
	noticeDeleted = "Application deleted successfully"
	msgNotFound   = "Application not found. It may have been deleted."
)

func (s *server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	d := dash(r)
	if q, ok := r.URL.Query()["q"]; ok {
		d.SetSearch(q[0])
	}
	view := d.View()
	if !view.Loaded && view.Error == "" {
		d.Refresh(r.Context())
		view = d.View()
	}
	params := html.DashboardParams{
		Base: s.base(r, "Dashboard"),
		View: view,
	}
	if params.Error == "" {
		params.Error = view.Error
	}
	html.DashboardPage(w, params)
}

func (s *server) handleNewDraft(w http.ResponseWriter, r *http.Request) {
	dash(r).StartCreate()
	redirectToDashboard(w, r, "")
}

func (s *server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	recordId := chi.URLParam(r, "record-id")
	err := dash(r).StartEdit(recordId)
	if err != nil {
		redirectToDashboard(w, r, msgNotFound)
		return
	}
	redirectToDashboard(w, r, "")
}

func draftFields(r *http.Request) domain.ApplicationFields {
	return domain.ApplicationFields{
		Company:     r.FormValue("company"),
		Position:    r.FormValue("position"),
		Location:    r.FormValue("location"),
		Status:      domain.ApplicationStatus(r.FormValue("status")),
		Date:        r.FormValue("date"),
		SalaryRange: r.FormValue("salaryRange"),
	}
}

func (s *server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	d := dash(r)
	// The form names the record it edits. When the open draft is for another
	// record, or there is none, e.g. after a second tab moved on, the draft
	// is reopened for the posted record.
	recordId := r.FormValue("id")
	if draft := d.View().Draft; draft == nil || draft.RecordID != recordId {
		if recordId != "" {
			if err := d.StartEdit(recordId); err != nil {
				redirectToDashboard(w, r, msgNotFound)
				return
			}
		} else {
			d.StartCreate()
		}
	}
	if err := d.UpdateDraft(draftFields(r)); err != nil {
		redirectToDashboard(w, r, "")
		return
	}
	err := d.SubmitDraft(r.Context())
	switch {
	case err == nil:
		http.Redirect(w, r, "/dashboard?"+noticeQuery(noticeSaved), http.StatusSeeOther)
	case errors.Is(err, dashboard.ErrBusy):
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "a save is already in progress")
	default:
		// the dashboard keeps the error and the open draft
		redirectToDashboard(w, r, "")
	}
}

func (s *server) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	dash(r).CancelDraft()
	redirectToDashboard(w, r, "")
}

func (s *server) handleGetDelete(w http.ResponseWriter, r *http.Request) {
	recordId := chi.URLParam(r, "record-id")
	record, ok := dash(r).Record(recordId)
	if !ok {
		redirectToDashboard(w, r, msgNotFound)
		return
	}
	html.ConfirmPage(w, html.ConfirmParams{
		Base:   s.base(r, "Delete application"),
		Record: record,
	})
}

func (s *server) handlePostDelete(w http.ResponseWriter, r *http.Request) {
	recordId := chi.URLParam(r, "record-id")
	confirmed := r.FormValue("confirm") == "yes"
	deleted, err := dash(r).RequestDelete(r.Context(), recordId, func(domain.ApplicationRecord) bool {
		return confirmed
	})
	switch {
	case errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrDeleteFailed):
		redirectToDashboard(w, r, msgNotFound)
	case deleted:
		http.Redirect(w, r, "/dashboard?"+noticeQuery(noticeDeleted), http.StatusSeeOther)
	default:
		redirectToDashboard(w, r, "")
	}
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	dash(r).Refresh(r.Context())
	redirectToDashboard(w, r, "")
}

func redirectToDashboard(w http.ResponseWriter, r *http.Request, errMsg string) {
	http.Redirect(w, r, fmt.Sprintf("/dashboard?%v", errorQuery(errMsg)), http.StatusSeeOther)
}
