// Activity REST endpoints — list/search, stats, attention views, and the
// command surface (status, assign, escalate, tag, evidence, archive).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/triage"
)

// GET  /api/activities?types=&statuses=&priorities=&building=&zone=&assigned_to=
//
//	&window=&from=&to=&q=&min_confidence=&include_archived=&denoise=
//	&limit=&offset=&sort=&order=
//
// POST /api/activities — create from a dashboard form
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listActivities(w, r)
	case http.MethodPost:
		s.createActivity(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	q, err := parseActivityQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.container.ActivityQueries.Search(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := res.Items
	if r.URL.Query().Get("denoise") == "true" {
		items = triage.FilterNoise(items)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": res.Total,
	})
}

func (s *Server) createActivity(w http.ResponseWriter, r *http.Request) {
	var cmd app.CreateActivityCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeCommandResult(w, s.container.Activities.Create(cmd))
}

// GET /api/activities/stats
func (s *Server) handleActivityStats(w http.ResponseWriter, r *http.Request) {
	q, err := parseActivityQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.container.ActivityQueries.Stats(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/activities/attention
func (s *Server) handleActivityAttention(w http.ResponseWriter, r *http.Request) {
	items, err := s.container.ActivityQueries.RequiringAttention()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GET /api/activities/overdue
func (s *Server) handleActivityOverdue(w http.ResponseWriter, r *http.Request) {
	items, err := s.container.ActivityQueries.Overdue(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// POST /api/activities/bulk/status
func (s *Server) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var cmd app.BulkUpdateStatusCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeCommandResult(w, s.container.Activities.BulkUpdateStatus(cmd))
}

// POST /api/activities/bulk/archive
func (s *Server) handleBulkArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var cmd app.BulkArchiveCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeCommandResult(w, s.container.Activities.BulkArchive(cmd))
}

// /api/activities/{id} and /api/activities/{id}/{action}
func (s *Server) handleActivityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/activities/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "activity id required")
		return
	}
	aggregateID := domain.EntityID(id)

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		a, err := s.container.ActivityQueries.GetByID(aggregateID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}

	if action == "related" || action == "cluster" {
		s.handleActivityRelated(w, r, aggregateID, action)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var body struct {
		Status      activity.Status `json:"status"`
		UserID      string          `json:"user_id"`
		Level       int             `json:"level"`
		Tag         string          `json:"tag"`
		Kind        string          `json:"kind"`
		Description string          `json:"description"`
		URI         string          `json:"uri"`
		IncidentID  string          `json:"incident_id"`
		Reason      string          `json:"reason"`
		Actor       string          `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result app.CommandResult
	switch action {
	case "status":
		result = s.container.Activities.UpdateStatus(app.UpdateActivityStatusCommand{
			ID: aggregateID, Status: body.Status, Actor: body.Actor,
		})
	case "assign":
		result = s.container.Activities.Assign(app.AssignActivityCommand{
			ID: aggregateID, UserID: body.UserID, Actor: body.Actor,
		})
	case "escalate":
		result = s.container.Activities.Escalate(app.EscalateActivityCommand{
			ID: aggregateID, Level: body.Level, Actor: body.Actor,
		})
	case "tags":
		result = s.container.Activities.AddTag(app.TagActivityCommand{
			ID: aggregateID, Tag: domain.Tag(body.Tag), Actor: body.Actor,
		})
	case "evidence":
		result = s.container.Activities.AddEvidence(app.AddEvidenceCommand{
			ID: aggregateID, Kind: body.Kind, Description: body.Description,
			URI: body.URI, Actor: body.Actor,
		})
	case "archive":
		result = s.container.Activities.Archive(app.ArchiveActivityCommand{
			ID: aggregateID, Reason: body.Reason, Actor: body.Actor,
		})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	writeCommandResult(w, result)
}

// GET /api/activities/{id}/related?window=15m
// GET /api/activities/{id}/cluster?window=15m
func (s *Server) handleActivityRelated(w http.ResponseWriter, r *http.Request, id domain.EntityID, action string) {
	window := triage.DefaultClusterWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = parsed
	}

	if action == "cluster" {
		if s.clusterer == nil {
			writeError(w, http.StatusServiceUnavailable, "clustering not available")
			return
		}
		cluster, err := s.clusterer.Around(id, window)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cluster)
		return
	}

	items, err := s.container.ActivityQueries.Related(id, window)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// parseActivityQuery maps URL parameters onto the structured filter.
// window= takes precedence over explicit from=/to=.
func parseActivityQuery(r *http.Request) (activity.Query, error) {
	params := r.URL.Query()
	q := activity.Query{
		Building:   params.Get("building"),
		Zone:       params.Get("zone"),
		AssignedTo: params.Get("assigned_to"),
		Text:       params.Get("q"),
		SortField:  params.Get("sort"),
		SortOrder:  activity.SortOrder(params.Get("order")),
	}

	for _, t := range splitParam(params.Get("types")) {
		q.Types = append(q.Types, activity.Type(t))
	}
	for _, st := range splitParam(params.Get("statuses")) {
		q.Statuses = append(q.Statuses, activity.Status(st))
	}
	for _, p := range splitParam(params.Get("priorities")) {
		q.Priorities = append(q.Priorities, domain.Priority(p))
	}

	if raw := params.Get("window"); raw != "" {
		applied, ok := triage.Window(raw).Apply(q, time.Now())
		if !ok {
			return q, badParam("window")
		}
		q = applied
	} else {
		if raw := params.Get("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return q, badParam("from")
			}
			q.From = t
		}
		if raw := params.Get("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return q, badParam("to")
			}
			q.To = t
		}
	}

	if raw := params.Get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, badParam("min_confidence")
		}
		q.MinConfidence = v
	}
	if raw := params.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, badParam("limit")
		}
		q.Limit = v
	}
	if raw := params.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, badParam("offset")
		}
		q.Offset = v
	}
	q.IncludeArchived = params.Get("include_archived") == "true"

	return q, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type paramError string

func (e paramError) Error() string { return "invalid parameter: " + string(e) }

func badParam(name string) error { return paramError(name) }
