package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/dashboard"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/samber/lo"
)

func jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *server) handleApiSession(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, newSessionMessage(s.snapshot(r)))
}

type applicationResponse struct {
	ID          string     `json:"id"`
	Company     string     `json:"company"`
	Position    string     `json:"position"`
	Location    string     `json:"location"`
	Status      string     `json:"status"`
	Date        string     `json:"date"`
	SalaryRange string     `json:"salaryRange"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type applicationsResponse struct {
	Applications []applicationResponse `json:"applications"`
	Total        int                   `json:"total"`
	Counts       map[string]int        `json:"counts"`
	Error        string                `json:"error,omitempty"`
}

// handleApiApplications returns the dashboard's current records, filtered
// by the optional q parameter, with counts over all of them.
func (s *server) handleApiApplications(w http.ResponseWriter, r *http.Request) {
	d := dash(r)
	view := d.View()
	if !view.Loaded {
		d.Refresh(r.Context())
		view = d.View()
	}
	records := view.Records
	if q, ok := r.URL.Query()["q"]; ok {
		// the ad hoc filter does not change the page's search term
		records = dashboard.Filter(unfiltered(d, view), q[0])
	}
	response := applicationsResponse{
		Applications: lo.Map(records, func(rec domain.ApplicationRecord, _ int) applicationResponse {
			return applicationResponse{
				ID:          rec.ID,
				Company:     rec.Company,
				Position:    rec.Position,
				Location:    rec.Location,
				Status:      string(rec.Status),
				Date:        rec.DateApplied.String(),
				SalaryRange: rec.SalaryRange,
				CreatedAt:   rec.CreatedAt,
				UpdatedAt:   rec.UpdatedAt,
			}
		}),
		Total: view.Total,
		Counts: lo.SliceToMap(view.Stats, func(c dashboard.StatusCount) (string, int) {
			return string(c.Status), c.Count
		}),
		Error: view.Error,
	}
	jsonResponse(w, http.StatusOK, response)
}

func unfiltered(d *dashboard.Dashboard, view dashboard.View) []domain.ApplicationRecord {
	if view.Search == "" {
		return view.Records
	}
	return d.Records()
}
