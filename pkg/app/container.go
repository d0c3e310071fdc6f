package app

import (
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/domain/rules"
	"github.com/argusops/argus/pkg/logger"
)

// Container wires the application layer: one shared read cache, the
// command and query services on both sides, and the rule repository.
// Outer surfaces (gateway, rule engine, notifiers) receive it whole.
type Container struct {
	Bus   domain.EventBus
	Cache *QueryCache

	Activities      *ActivityCommandService
	Incidents       *IncidentCommandService
	ActivityQueries *ActivityQueryService
	IncidentQueries *IncidentQueryService

	Rules rules.Repository
}

// NewContainer assembles the services around the given repositories and
// bus. The auditor receives every command result from either side.
func NewContainer(activityRepo activity.Repository, incidentRepo incident.Repository, ruleRepo rules.Repository, bus domain.EventBus, audit Auditor) *Container {
	cache := NewQueryCache()

	activityCommands := NewActivityCommandService(activityRepo, bus, cache, audit)
	incidentCommands := NewIncidentCommandService(incidentRepo, activityCommands, bus, cache, audit)

	return &Container{
		Bus:             bus,
		Cache:           cache,
		Activities:      activityCommands,
		Incidents:       incidentCommands,
		ActivityQueries: NewActivityQueryService(activityRepo, cache, bus),
		IncidentQueries: NewIncidentQueryService(incidentRepo, cache, bus),
		Rules:           ruleRepo,
	}
}

// SeedDefaultRules installs the built-in creation rules, skipping any id
// that already exists so operator edits survive restarts.
func (c *Container) SeedDefaultRules() error {
	for _, rule := range rules.Defaults() {
		if _, err := c.Rules.FindByID(rule.ID); err == nil {
			continue
		}
		if err := c.Rules.Save(rule); err != nil {
			return err
		}
		logger.InfoCF("app", "Seeded creation rule", map[string]interface{}{
			"rule": rule.Name,
		})
	}
	return nil
}

// RetryFailedCommands drains both retry queues. Intended to run on a
// periodic tick alongside the validation sweep.
func (c *Container) RetryFailedCommands() {
	c.Activities.RetryFailed()
	c.Incidents.RetryFailed()
}
