// Package rules defines the incident creation rule context.
// Rules are data: declarative condition sets evaluated against activity
// snapshots, never executed as code.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
)

// ---------------------------------------------------------------------------
// CreationRule entity
// ---------------------------------------------------------------------------

// CreationRule describes when an activity event should spawn an incident.
type CreationRule struct {
	ID          domain.EntityID `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`

	// Trigger constraints
	TriggerActivityTypes []activity.Type  `json:"trigger_activity_types"`
	ConfidenceThreshold  *float64         `json:"confidence_threshold,omitempty"`
	PriorityThreshold    *domain.Priority `json:"priority_threshold,omitempty"`
	Conditions           []Condition      `json:"conditions,omitempty"`

	// Cluster constraints — when TimeWindowMinutes is set, the rule only
	// fires if at least MinClusterSize activities of the trigger types
	// (counting the trigger itself) occurred within the window, and within
	// the same building/zone when LocationBased is set.
	TimeWindowMinutes int  `json:"time_window_minutes,omitempty"`
	LocationBased     bool `json:"location_based,omitempty"`
	MinClusterSize    int  `json:"min_cluster_size,omitempty"`

	// Outcome
	IncidentType             string          `json:"incident_type"`
	IncidentPriority         domain.Priority `json:"incident_priority"`
	RequiresValidation       bool            `json:"requires_validation"`
	ValidationTimeoutMinutes int             `json:"validation_timeout_minutes,omitempty"`
	Dismissible              bool            `json:"dismissible"`
}

// ValidationTimeout returns the pending window as a duration.
func (r *CreationRule) ValidationTimeout() time.Duration {
	return time.Duration(r.ValidationTimeoutMinutes) * time.Minute
}

// ClusterWindow returns the cluster time window and whether clustering
// applies to this rule at all.
func (r *CreationRule) ClusterWindow() (time.Duration, bool) {
	if r.TimeWindowMinutes <= 0 {
		return 0, false
	}
	return time.Duration(r.TimeWindowMinutes) * time.Minute, true
}

// ClusterSize returns the effective minimum cluster size (default 2).
func (r *CreationRule) ClusterSize() int {
	if r.MinClusterSize < 2 {
		return 2
	}
	return r.MinClusterSize
}

// Clone returns a deep copy. Repositories hand out clones so a rule edit
// never aliases state the engine is concurrently evaluating.
func (r *CreationRule) Clone() *CreationRule {
	c := *r
	c.TriggerActivityTypes = append([]activity.Type(nil), r.TriggerActivityTypes...)
	c.Conditions = append([]Condition(nil), r.Conditions...)
	if r.ConfidenceThreshold != nil {
		v := *r.ConfidenceThreshold
		c.ConfidenceThreshold = &v
	}
	if r.PriorityThreshold != nil {
		v := *r.PriorityThreshold
		c.PriorityThreshold = &v
	}
	return &c
}

// Matches evaluates the rule's non-cluster constraints against an activity
// snapshot. All constraints AND together. A nil threshold means no
// constraint. Cluster constraints need repository access and are checked
// by the engine.
func (r *CreationRule) Matches(snap activity.Snapshot) (bool, error) {
	if !r.Enabled {
		return false, nil
	}
	if !r.typeMatches(snap.Type) {
		return false, nil
	}
	if r.ConfidenceThreshold != nil {
		have := activity.NormalizeConfidence(snap.Confidence)
		want := activity.NormalizeConfidence(*r.ConfidenceThreshold)
		if have < want {
			return false, nil
		}
	}
	if r.PriorityThreshold != nil && !snap.Priority.AtLeast(*r.PriorityThreshold) {
		return false, nil
	}
	for _, cond := range r.Conditions {
		ok, err := cond.Evaluate(snap)
		if err != nil {
			return false, &EvaluationError{Rule: r.Name, Cond: cond, Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *CreationRule) typeMatches(t activity.Type) bool {
	if len(r.TriggerActivityTypes) == 0 {
		return false
	}
	for _, tt := range r.TriggerActivityTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// Validate checks that the rule is well-formed enough to evaluate.
func (r *CreationRule) Validate() error {
	if r.Name == "" {
		return ErrEmptyName
	}
	if len(r.TriggerActivityTypes) == 0 {
		return ErrNoTriggerTypes
	}
	if r.IncidentType == "" {
		return ErrNoIncidentType
	}
	if !r.IncidentPriority.Valid() {
		return ErrBadIncidentPriority
	}
	if r.RequiresValidation && r.ValidationTimeoutMinutes <= 0 {
		return ErrNoValidationTimeout
	}
	for _, cond := range r.Conditions {
		if _, ok := fieldResolvers[cond.Field]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, cond.Field)
		}
		if !cond.Operator.valid() {
			return fmt.Errorf("%w: %s", ErrUnknownOperator, cond.Operator)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conditions — a typed predicate set, not stringly reflection
// ---------------------------------------------------------------------------

// Operator is a comparison verb usable in rule conditions.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

func (o Operator) valid() bool {
	switch o {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is one field/operator/value triple. Conditions AND together.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// fieldValue is the typed result of resolving a snapshot field.
type fieldValue struct {
	str     string
	num     float64
	numeric bool
	tags    domain.Tags
}

// fieldResolvers maps condition field names to typed accessors on the
// activity snapshot. Adding a field here is the only way to make it
// addressable from rule conditions.
var fieldResolvers = map[string]func(activity.Snapshot) fieldValue{
	"type":             func(s activity.Snapshot) fieldValue { return fieldValue{str: string(s.Type)} },
	"title":            func(s activity.Snapshot) fieldValue { return fieldValue{str: s.Title} },
	"description":      func(s activity.Snapshot) fieldValue { return fieldValue{str: s.Description} },
	"status":           func(s activity.Snapshot) fieldValue { return fieldValue{str: string(s.Status)} },
	"assigned_to":      func(s activity.Snapshot) fieldValue { return fieldValue{str: s.AssignedTo} },
	"source":           func(s activity.Snapshot) fieldValue { return fieldValue{str: string(s.Source)} },
	"location":         func(s activity.Snapshot) fieldValue { return fieldValue{str: s.Location.Name} },
	"building":         func(s activity.Snapshot) fieldValue { return fieldValue{str: s.Location.Building} },
	"zone":             func(s activity.Snapshot) fieldValue { return fieldValue{str: s.Location.Zone} },
	"priority":         func(s activity.Snapshot) fieldValue { return fieldValue{str: string(s.Priority), num: float64(s.Priority.Rank()), numeric: true} },
	"confidence":       func(s activity.Snapshot) fieldValue { return fieldValue{num: s.Confidence, numeric: true} },
	"escalation_level": func(s activity.Snapshot) fieldValue { return fieldValue{num: float64(s.EscalationLevel), numeric: true} },
	"user_tags":        func(s activity.Snapshot) fieldValue { return fieldValue{tags: s.UserTags} },
	"system_tags":      func(s activity.Snapshot) fieldValue { return fieldValue{tags: s.SystemTags} },
}

// Evaluate applies the condition to a snapshot.
func (c Condition) Evaluate(snap activity.Snapshot) (bool, error) {
	resolve, ok := fieldResolvers[c.Field]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownField, c.Field)
	}
	fv := resolve(snap)

	switch c.Operator {
	case OpEquals:
		if fv.numeric {
			if n, ok := asNumber(c.Value); ok {
				return fv.num == n, nil
			}
		}
		return fv.str == asString(c.Value), nil

	case OpContains:
		needle := asString(c.Value)
		if fv.tags != nil {
			return fv.tags.Contains(domain.Tag(needle)), nil
		}
		return strings.Contains(strings.ToLower(fv.str), strings.ToLower(needle)), nil

	case OpGreaterThan:
		return c.compareNumeric(fv, func(a, b float64) bool { return a > b })

	case OpLessThan:
		return c.compareNumeric(fv, func(a, b float64) bool { return a < b })

	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
	}
}

func (c Condition) compareNumeric(fv fieldValue, cmp func(a, b float64) bool) (bool, error) {
	if !fv.numeric {
		return false, fmt.Errorf("%w: field %s is not numeric", ErrTypeMismatch, c.Field)
	}
	n, ok := asNumber(c.Value)
	if !ok {
		// Priority thresholds may be given by name ("high" etc).
		if c.Field == "priority" {
			p := domain.Priority(asString(c.Value))
			if p.Valid() {
				return cmp(fv.num, float64(p.Rank())), nil
			}
		}
		return false, fmt.Errorf("%w: value %v is not numeric", ErrTypeMismatch, c.Value)
	}
	return cmp(fv.num, n), nil
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// Repository interface
// ---------------------------------------------------------------------------

// Repository defines persistence for creation rules.
type Repository interface {
	FindByID(id domain.EntityID) (*CreationRule, error)
	FindEnabled() ([]*CreationRule, error)
	FindAll() ([]*CreationRule, error)
	Save(r *CreationRule) error
	Delete(id domain.EntityID) error
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// EvaluationError wraps a failure evaluating one rule. It is isolated to
// that rule: the engine logs it and continues with the rest.
type EvaluationError struct {
	Rule string
	Cond Condition
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %q: condition %s %s %v: %v", e.Rule, e.Cond.Field, e.Cond.Operator, e.Cond.Value, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

type RuleError string

func (e RuleError) Error() string { return string(e) }

const (
	ErrEmptyName           RuleError = "rule name cannot be empty"
	ErrNoTriggerTypes      RuleError = "rule requires at least one trigger activity type"
	ErrNoIncidentType      RuleError = "rule requires an incident type"
	ErrBadIncidentPriority RuleError = "rule incident priority is not recognized"
	ErrNoValidationTimeout RuleError = "validation timeout required when validation is enabled"
	ErrUnknownField        RuleError = "unknown condition field"
	ErrUnknownOperator     RuleError = "unknown condition operator"
	ErrTypeMismatch        RuleError = "condition type mismatch"
	ErrRuleNotFound        RuleError = "rule not found"
)
