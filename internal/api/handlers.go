// Package api exposes the engine's command and projection surface:
// campaign CRUD, enrollment, lifecycle commands, launch history and
// insights. Message sending never happens here; commands only flip
// state the account workers act on.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/insights"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/worker"
)

// Handlers carries the API's collaborators.
type Handlers struct {
	store    *campaign.Store
	engine   *worker.Engine
	insights *insights.Service
	limiter  *worker.RateLimiter
	started  time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(store *campaign.Store, engine *worker.Engine, insightsSvc *insights.Service, limiter *worker.RateLimiter) *Handlers {
	return &Handlers{
		store:    store,
		engine:   engine,
		insights: insightsSvc,
		limiter:  limiter,
		started:  time.Now(),
	}
}

// HealthCheck reports liveness and worker count.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(h.started).String(),
		"workers": h.engine.WorkerCount(),
	})
}

func campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateCampaign validates and stores a campaign definition as draft.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var camp campaign.Campaign
	if !httputil.Decode(w, r, &camp) {
		return
	}

	if err := h.store.CreateCampaign(r.Context(), &camp); err != nil {
		if errors.Is(err, campaign.ErrInvalidConfig) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, camp)
}

// GetCampaign returns one campaign with its steps.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	camp, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, camp)
}

// UpdateCampaign replaces a campaign's definition. Editing an active
// campaign is rejected; pause it first.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var camp campaign.Campaign
	if !httputil.Decode(w, r, &camp) {
		return
	}
	camp.ID = id

	if err := h.store.UpdateCampaign(r.Context(), &camp); err != nil {
		switch {
		case errors.Is(err, campaign.ErrInvalidConfig):
			httputil.BadRequest(w, err.Error())
		case errors.Is(err, campaign.ErrNotFound):
			httputil.NotFound(w, "campaign not found")
		case errors.Is(err, campaign.ErrNotEditable):
			httputil.Error(w, http.StatusConflict, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, camp)
}

// DeleteCampaign removes a campaign; steps and contacts cascade.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteCampaign(r.Context(), id); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// EnrollContacts enrolls leads into a campaign. Re-enrolling is a no-op.
func (h *Handlers) EnrollContacts(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req struct {
		LeadIDs []uuid.UUID `json:"lead_ids"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.LeadIDs) == 0 {
		httputil.BadRequest(w, "lead_ids is required")
		return
	}

	n, err := h.store.EnrollContacts(r.Context(), id, req.LeadIDs)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"enrolled": n})
}

// StartCampaign activates a campaign and opens its launch.
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	launch, err := h.engine.StartCampaign(r.Context(), id, campaign.TriggerManual)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.Error(w, http.StatusConflict, err.Error())
		return
	}
	h.insights.Invalidate(r.Context(), id)
	httputil.OK(w, launch)
}

// PauseCampaign pauses a running campaign; in-flight dispatches drain.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.engine.PauseCampaign(r.Context(), id); err != nil {
		httputil.Error(w, http.StatusConflict, err.Error())
		return
	}
	h.insights.Invalidate(r.Context(), id)
	httputil.NoContent(w)
}

// StopCampaign terminates a campaign permanently.
func (h *Handlers) StopCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.engine.StopCampaign(r.Context(), id); err != nil {
		httputil.Error(w, http.StatusConflict, err.Error())
		return
	}
	h.insights.Invalidate(r.Context(), id)
	httputil.NoContent(w)
}

// ArchiveCampaign retires a finished campaign from listings.
func (h *Handlers) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.engine.ArchiveCampaign(r.Context(), id); err != nil {
		httputil.Error(w, http.StatusConflict, err.Error())
		return
	}
	httputil.NoContent(w)
}

// ListLaunches returns a campaign's launch history.
func (h *Handlers) ListLaunches(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	launches, err := h.store.ListLaunches(r.Context(), id, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, launches)
}

// ScheduledActions previews the campaign's upcoming actions.
func (h *Handlers) ScheduledActions(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	actions, err := h.store.PreviewDue(r.Context(), id, time.Now().UTC(), 100)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, actions)
}

// DailyStats returns per-day counters for the insights view.
func (h *Handlers) DailyStats(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	stats, err := h.insights.DailyStats(r.Context(), id, days)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// StepPerformance returns per-step aggregates.
func (h *Handlers) StepPerformance(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	perf, err := h.insights.StepPerformance(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, perf)
}

// ReplyAnalysis returns the sentiment and keyword projection.
func (h *Handlers) ReplyAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	analysis, err := h.insights.ReplyAnalysis(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, analysis)
}

// RateUsage reports today's consumed admission counters.
func (h *Handlers) RateUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	usage, err := h.limiter.Usage(r.Context(), id, time.Now().UTC())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, usage)
}

// CreateLead stores a lead record.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var lead campaign.Lead
	if !httputil.Decode(w, r, &lead) {
		return
	}
	if lead.FirstName == "" && lead.LastName == "" && lead.Email == "" {
		httputil.BadRequest(w, "a lead needs at least a name or an email")
		return
	}

	if err := h.store.CreateLead(r.Context(), &lead); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, lead)
}
