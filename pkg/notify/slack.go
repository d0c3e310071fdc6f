// Package notify pushes operator-facing notifications out of band.
// Notifiers are bus subscribers and audit hooks; core logic never
// depends on them.
package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/config"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/logger"
)

// messagePoster is the slice of the Slack client the notifier uses.
type messagePoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts to a channel when incidents open, when an
// escalation crosses the configured level, and when commands fail.
// A disabled notifier is a no-op so callers never branch.
type SlackNotifier struct {
	client  messagePoster
	channel string
	// minEscalation gates escalation notifications.
	minEscalation int
	enabled       bool
}

// NewSlackNotifier builds a notifier from config. Disabled config (or a
// missing token) yields an inert notifier.
func NewSlackNotifier(cfg config.SlackConfig) *SlackNotifier {
	n := &SlackNotifier{
		channel:       cfg.Channel,
		minEscalation: cfg.EscalationNotifyLevel,
		enabled:       cfg.Enabled && cfg.Token != "" && cfg.Channel != "",
	}
	if n.enabled {
		n.client = slack.New(cfg.Token)
	}
	return n
}

// Start subscribes the notifier to the incident stream.
func (n *SlackNotifier) Start(bus domain.EventBus) {
	if !n.enabled {
		return
	}
	bus.Subscribe(domain.EventIncidentCreated, n.onIncidentCreated)
	bus.Subscribe(domain.EventIncidentEscalated, n.onIncidentEscalated)
}

// Auditor returns a command audit hook that reports failures. Bulk
// partial failures are included; they need operator follow-up.
func (n *SlackNotifier) Auditor() app.Auditor {
	return func(result app.CommandResult) {
		if result.Success || !n.enabled {
			return
		}
		n.post(fmt.Sprintf(":warning: Command `%s` failed for `%s`: %s",
			result.CommandType, result.AggregateID, result.Error))
	}
}

func (n *SlackNotifier) onIncidentCreated(e domain.Event) {
	fields, _ := e.Payload().(map[string]interface{})
	kind, _ := fields["type"].(string)
	priority, _ := fields["priority"].(string)
	n.post(fmt.Sprintf(":rotating_light: Incident opened [%s] %s (%s)",
		priority, kind, e.AggregateID()))
}

func (n *SlackNotifier) onIncidentEscalated(e domain.Event) {
	step, ok := e.Payload().(incident.EscalationStep)
	if !ok || step.Level < n.minEscalation {
		return
	}
	n.post(fmt.Sprintf(":arrow_double_up: Incident %s escalated to level %d (%s)",
		e.AggregateID(), step.Level, step.Target))
}

func (n *SlackNotifier) post(text string) {
	if !n.enabled || n.client == nil {
		return
	}
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		logger.ErrorCF("notify", "Slack post failed", map[string]interface{}{
			"channel": n.channel,
			"error":   err.Error(),
		})
	}
}
