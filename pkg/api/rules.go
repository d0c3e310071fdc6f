// Creation-rule management endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/rules"
)

// GET  /api/rules — list all rules (enabled and disabled)
// POST /api/rules — create or replace a rule
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := s.container.Rules.FindAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, all)

	case http.MethodPost:
		var rule rules.CreationRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if rule.ID.IsZero() {
			rule.ID = domain.NewID()
		}
		if err := rule.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.container.Rules.Save(&rule); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rule)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/rules/{id}, DELETE /api/rules/{id}
func (s *Server) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "rule id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := s.container.Rules.FindByID(domain.EntityID(id))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodDelete:
		if err := s.container.Rules.Delete(domain.EntityID(id)); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
