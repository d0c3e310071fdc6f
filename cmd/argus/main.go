// Argus daemon entry point — wires storage, the event bus, the rule
// engine, notifications and the dashboard API, then waits for shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/argusops/argus/pkg/api"
	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/config"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/infrastructure/eventbus"
	"github.com/argusops/argus/pkg/infrastructure/persistence"
	"github.com/argusops/argus/pkg/logger"
	"github.com/argusops/argus/pkg/notify"
	"github.com/argusops/argus/pkg/rulengine"
	"github.com/argusops/argus/pkg/triage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Open(cfg.Storage.Path)
	if err != nil {
		logger.ErrorCF("main", "Failed to open storage", map[string]interface{}{
			"path":  cfg.Storage.Path,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer db.Close()

	bus := eventbus.New(cfg.Events.Enabled, eventbus.WithHistorySize(cfg.Events.HistorySize))
	defer bus.Close()

	notifier := notify.NewSlackNotifier(cfg.Slack)
	notifier.Start(bus)

	activityRepo := persistence.NewSQLiteActivityRepository(db)
	container := app.NewContainer(
		activityRepo,
		persistence.NewSQLiteIncidentRepository(db),
		persistence.NewSQLiteRuleRepository(db),
		bus,
		notifier.Auditor(),
	)
	container.Activities.SetRetentionPeriod(cfg.RetentionPeriod())

	if cfg.Rules.SeedDefaults {
		if err := container.SeedDefaultRules(); err != nil {
			logger.ErrorCF("main", "Failed to seed default rules", map[string]interface{}{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}

	engine := rulengine.New(container, activityRepo, cfg.Rules.SweepSchedule)
	engine.Start(ctx)
	defer engine.Stop()

	server := api.NewServer(cfg, container)
	server.SetClusterer(triage.NewClusterer(activityRepo))
	if err := server.Start(ctx); err != nil {
		logger.ErrorCF("main", "Failed to start API server", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	bus.Publish(domain.NewEvent(domain.EventSystemStartup, "argus", "system", map[string]interface{}{
		"events_enabled": cfg.Events.Enabled,
	}))
	logger.InfoCF("main", "Argus started", map[string]interface{}{
		"addr":           fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"events_enabled": cfg.Events.Enabled,
	})

	<-ctx.Done()

	bus.Publish(domain.NewEvent(domain.EventSystemShutdown, "argus", "system", nil))
	logger.InfoC("main", "Shutting down")
	if err := server.Stop(); err != nil {
		logger.ErrorCF("main", "Server shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
