// Incident REST endpoints — search, pending-validation view, and the
// lifecycle command surface (validate, dismiss, transition, escalate).
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/incident"
)

// GET  /api/incidents?statuses=&priorities=&auto_created=&from=&to=
// POST /api/incidents — open an incident manually
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listIncidents(w, r)
	case http.MethodPost:
		s.createIncident(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	q, err := parseIncidentQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.container.IncidentQueries.Search(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": res.Items,
		"total": res.Total,
	})
}

func (s *Server) createIncident(w http.ResponseWriter, r *http.Request) {
	var cmd app.CreateIncidentCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Manual creation never claims rule provenance.
	cmd.AutoCreated = false
	cmd.CreationRuleID = ""
	writeCommandResult(w, s.container.Incidents.Create(cmd))
}

// GET /api/incidents/pending
func (s *Server) handleIncidentsPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.container.IncidentQueries.PendingValidation()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// /api/incidents/{id} and /api/incidents/{id}/{action}
func (s *Server) handleIncidentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "incident id required")
		return
	}
	aggregateID := domain.EntityID(id)

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		inc, err := s.container.IncidentQueries.GetByID(aggregateID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, inc)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var body struct {
		Target     incident.Status `json:"target"`
		Reason     string          `json:"reason"`
		Level      int             `json:"level"`
		EscTarget  string          `json:"escalation_target"`
		ActivityID string          `json:"activity_id"`
		Actor      string          `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result app.CommandResult
	switch action {
	case "validate":
		result = s.container.Incidents.Validate(app.ValidateIncidentCommand{
			ID: aggregateID, Actor: body.Actor,
		})
	case "dismiss":
		result = s.container.Incidents.Dismiss(app.DismissIncidentCommand{
			ID: aggregateID, Reason: body.Reason, Actor: body.Actor,
		})
	case "transition":
		result = s.container.Incidents.Transition(app.TransitionIncidentCommand{
			ID: aggregateID, Target: body.Target, Actor: body.Actor,
		})
	case "escalate":
		result = s.container.Incidents.Escalate(app.EscalateIncidentCommand{
			ID: aggregateID, Level: body.Level, Target: body.EscTarget,
			Reason: body.Reason, Actor: body.Actor,
		})
	case "relate":
		result = s.container.Incidents.RelateActivity(app.RelateActivityCommand{
			ID: aggregateID, ActivityID: domain.EntityID(body.ActivityID), Actor: body.Actor,
		})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	writeCommandResult(w, result)
}

func parseIncidentQuery(r *http.Request) (incident.Query, error) {
	params := r.URL.Query()
	q := incident.Query{}

	for _, st := range splitParam(params.Get("statuses")) {
		q.Statuses = append(q.Statuses, incident.Status(st))
	}
	for _, p := range splitParam(params.Get("priorities")) {
		q.Priorities = append(q.Priorities, domain.Priority(p))
	}
	if raw := params.Get("auto_created"); raw != "" {
		v := raw == "true"
		q.AutoCreated = &v
	}
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
	return q, nil
}
