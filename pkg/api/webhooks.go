// Webhook ingestion — external alert sources (sensor gateways, camera
// analytics, access-control systems) post raw payloads that are mapped
// into activity create commands. The raw payload is preserved on the
// activity for audit.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/logger"
)

// webhookPayload is the common shape posted by alert sources. Unknown
// fields ride along in the raw payload.
type webhookPayload struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Building    string  `json:"building"`
	Zone        string  `json:"zone"`
	Priority    string  `json:"priority"`
	Confidence  float64 `json:"confidence"`
	Event       string  `json:"event"`
}

// typeMappings translates per-source alert types onto activity types.
// Unmapped types fall back to the alarm type so nothing is dropped.
var typeMappings = map[string]map[string]activity.Type{
	"access-control": {
		"door-forced":   activity.TypeSecurityBreach,
		"badge-denied":  activity.TypeAccessDenied,
		"door-held":     activity.TypeAlarm,
		"badge-granted": activity.TypePatrol,
	},
	"camera-analytics": {
		"intrusion":   activity.TypeSecurityBreach,
		"loitering":   activity.TypeAlarm,
		"person-down": activity.TypeMedical,
	},
	"bms": {
		"fire-alarm":    activity.TypeAlarm,
		"hvac-fault":    activity.TypeMaintenance,
		"power-failure": activity.TypeMaintenance,
	},
}

// POST /api/webhook/{source} — ingest an external alert as an activity.
//
// The source name from the URL selects the type mapping and is recorded
// as the external source system. Responds 202 with the command result.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	source := r.PathValue("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "webhook source name required")
		return
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload")
		return
	}

	// Re-decode the known fields from the raw map.
	rawBytes, _ := json.Marshal(raw)
	var payload webhookPayload
	if err := json.Unmarshal(rawBytes, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload fields")
		return
	}

	cmd := mapWebhook(source, payload, raw)
	result := s.container.Activities.Create(cmd)
	if !result.Success {
		writeCommandResult(w, result)
		return
	}

	logger.InfoCF("webhook", "External alert ingested", map[string]interface{}{
		"source":   source,
		"type":     string(cmd.Type),
		"activity": string(result.AggregateID),
	})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":     fmt.Sprintf("webhook from %s accepted", source),
		"activity_id": result.AggregateID,
		"mapped_type": cmd.Type,
	})
}

// mapWebhook builds the create command for an external alert.
func mapWebhook(source string, p webhookPayload, raw map[string]interface{}) app.CreateActivityCommand {
	mapped, mapping := resolveType(source, p.Type)

	title := p.Title
	if title == "" {
		title = fmt.Sprintf("%s: %s", source, p.Type)
	}
	priority := domain.Priority(p.Priority)
	if priority.Rank() < 0 {
		priority = domain.PriorityMedium
	}

	return app.CreateActivityCommand{
		Type:        mapped,
		Title:       title,
		Location:    p.Location,
		Building:    p.Building,
		Zone:        p.Zone,
		Priority:    priority,
		Description: p.Description,
		Confidence:  p.Confidence,
		Source:      domain.SourceExternal,
		External: &activity.ExternalData{
			SourceSystem:        source,
			OriginalType:        p.Type,
			RawPayload:          raw,
			ProcessingTimestamp: domain.Now(),
			MappingUsed:         mapping,
			OriginalEvent:       p.Event,
		},
		CreatedBy: "webhook:" + source,
	}
}

// resolveType looks up the per-source mapping and names which mapping
// produced the result.
func resolveType(source, originalType string) (activity.Type, string) {
	if mapping, ok := typeMappings[source]; ok {
		if t, ok := mapping[originalType]; ok {
			return t, source
		}
	}
	// Payloads already using native type names pass through.
	if t := activity.Type(originalType); knownType(t) {
		return t, "native"
	}
	return activity.TypeAlarm, "fallback"
}

func knownType(t activity.Type) bool {
	switch t {
	case activity.TypeMedical, activity.TypeSecurityBreach, activity.TypePatrol,
		activity.TypeAccessDenied, activity.TypeAlarm, activity.TypeMaintenance:
		return true
	}
	return false
}
