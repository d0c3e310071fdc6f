// Argus - Security Operations Dashboard API Server
// Serves REST endpoints + WebSocket for live events + webhook ingestion
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/config"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/logger"
	"github.com/argusops/argus/pkg/triage"
)

// Server is the HTTP API server for the Argus dashboard.
type Server struct {
	config    *config.Config
	container *app.Container
	clusterer *triage.Clusterer
	wsHub     *WSHub
	bridge    *EventBridge
	startTime time.Time
	server    *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, container *app.Container) *Server {
	// Secure-by-default: auto-generate API key if none is configured.
	// Random key per session, printed once at startup. Set gateway.api_key
	// in the config file or ARGUS_GATEWAY_API_KEY for a persistent key.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			fmt.Println()
			fmt.Println("╔══════════════════════════════════════════════════════╗")
			fmt.Println("║            ARGUS API KEY (session token)             ║")
			fmt.Printf("║  %-52s  ║\n", cfg.Gateway.APIKey)
			fmt.Println("║  Set gateway.api_key in the config file to make      ║")
			fmt.Println("║  this permanent. Rotate it any time.                 ║")
			fmt.Println("╚══════════════════════════════════════════════════════╝")
			fmt.Println()
		}
	}

	s := &Server{
		config:    cfg,
		container: container,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.bridge = NewEventBridge(container.Bus, s.wsHub)
	return s
}

// SetClusterer wires the proximity-clustering read model.
func (s *Server) SetClusterer(c *triage.Clusterer) {
	s.clusterer = c
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/system/status", s.handleSystemStatus)

	// Activity read + write
	mux.HandleFunc("/api/activities", s.handleActivities)
	mux.HandleFunc("/api/activities/stats", s.handleActivityStats)
	mux.HandleFunc("/api/activities/attention", s.handleActivityAttention)
	mux.HandleFunc("/api/activities/overdue", s.handleActivityOverdue)
	mux.HandleFunc("/api/activities/bulk/status", s.handleBulkStatus)
	mux.HandleFunc("/api/activities/bulk/archive", s.handleBulkArchive)
	mux.HandleFunc("/api/activities/", s.handleActivityByID)

	// Incident read + write
	mux.HandleFunc("/api/incidents", s.handleIncidents)
	mux.HandleFunc("/api/incidents/pending", s.handleIncidentsPending)
	mux.HandleFunc("/api/incidents/", s.handleIncidentByID)

	// Creation rules
	mux.HandleFunc("/api/rules", s.handleRules)
	mux.HandleFunc("/api/rules/", s.handleRuleByID)

	// Bus history inspection
	mux.HandleFunc("/api/events/history", s.handleEventHistory)

	// Webhook ingestion (external alert sources → activities)
	mux.HandleFunc("/api/webhook/{source}", s.handleWebhook)

	// WebSocket for live events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Dashboard API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)
	s.bridge.Start()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"events": map[string]interface{}{
			"enabled":  s.container.Bus.Enabled(),
			"handlers": s.container.Bus.HandlerCount("*"),
			"history":  len(s.container.Bus.History()),
		},
		"retries": map[string]interface{}{
			"activities": s.container.Activities.PendingRetries(),
			"incidents":  s.container.Incidents.PendingRetries(),
		},
	})
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("aggregate"); id != "" {
		writeJSON(w, http.StatusOK, s.container.Bus.AggregateHistory(domain.EntityID(id)))
		return
	}
	writeJSON(w, http.StatusOK, s.container.Bus.History())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeCommandResult(w http.ResponseWriter, result app.CommandResult) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
		if strings.Contains(result.Error, "not found") {
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, result)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
