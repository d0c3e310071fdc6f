// Package persistence provides repository implementations for the Argus
// aggregates: an in-memory store (tests, ephemeral mode) and a SQLite
// store (the default). These are the infrastructure adapters for the
// domain repository interfaces.
package persistence

import (
	"sync"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/domain/rules"
)

// ---------------------------------------------------------------------------
// Generic in-memory store — reusable building block
// ---------------------------------------------------------------------------

// memStore is a generic in-memory map store guarded by a RWMutex.
type memStore[T any] struct {
	mu    sync.RWMutex
	items map[domain.EntityID]*T
}

func newMemStore[T any]() *memStore[T] {
	return &memStore[T]{items: make(map[domain.EntityID]*T)}
}

func (s *memStore[T]) get(id domain.EntityID) (*T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *memStore[T]) put(id domain.EntityID, item *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = item
}

func (s *memStore[T]) remove(id domain.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

func (s *memStore[T]) all() []*T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*T, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item)
	}
	return result
}

// ---------------------------------------------------------------------------
// Activity repository (in-memory)
// ---------------------------------------------------------------------------

// MemoryActivityRepository is the in-memory implementation of
// activity.Repository.
type MemoryActivityRepository struct {
	store *memStore[activity.Activity]
}

// NewMemoryActivityRepository creates an empty in-memory activity store.
func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{store: newMemStore[activity.Activity]()}
}

func (r *MemoryActivityRepository) FindByID(id domain.EntityID) (*activity.Activity, error) {
	a, ok := r.store.get(id)
	if !ok {
		return nil, activity.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryActivityRepository) FindByIDs(ids []domain.EntityID) ([]*activity.Activity, error) {
	var result []*activity.Activity
	for _, id := range ids {
		if a, ok := r.store.get(id); ok {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (r *MemoryActivityRepository) Search(q activity.Query) ([]*activity.Activity, int, error) {
	return cloneActivities(searchActivities(r.store.all(), q)), totalActivities(r.store.all(), q), nil
}

func (r *MemoryActivityRepository) Save(a *activity.Activity) error {
	r.store.put(a.ID(), a.Clone())
	return nil
}

func (r *MemoryActivityRepository) GetStats(q activity.Query) (*activity.Stats, error) {
	return computeStats(filterActivities(r.store.all(), q)), nil
}

func (r *MemoryActivityRepository) FindRequiringAttention() ([]*activity.Activity, error) {
	return cloneActivities(requiringAttention(r.store.all())), nil
}

func (r *MemoryActivityRepository) FindOverdue(now time.Time) ([]*activity.Activity, error) {
	return cloneActivities(overdueActivities(r.store.all(), now)), nil
}

func (r *MemoryActivityRepository) FindRetentionExpired(now time.Time) ([]*activity.Activity, error) {
	return cloneActivities(retentionExpiredActivities(r.store.all(), now)), nil
}

func (r *MemoryActivityRepository) FindRelated(id domain.EntityID, window time.Duration) ([]*activity.Activity, error) {
	ref, ok := r.store.get(id)
	if !ok {
		return nil, activity.ErrNotFound
	}
	return cloneActivities(relatedActivities(r.store.all(), ref, window)), nil
}

func cloneActivities(items []*activity.Activity) []*activity.Activity {
	out := make([]*activity.Activity, len(items))
	for i, a := range items {
		out[i] = a.Clone()
	}
	return out
}

// Compile-time verification
var _ activity.Repository = (*MemoryActivityRepository)(nil)

// ---------------------------------------------------------------------------
// Incident repository (in-memory)
// ---------------------------------------------------------------------------

// MemoryIncidentRepository is the in-memory implementation of
// incident.Repository.
type MemoryIncidentRepository struct {
	store *memStore[incident.Incident]
}

// NewMemoryIncidentRepository creates an empty in-memory incident store.
func NewMemoryIncidentRepository() *MemoryIncidentRepository {
	return &MemoryIncidentRepository{store: newMemStore[incident.Incident]()}
}

func (r *MemoryIncidentRepository) FindByID(id domain.EntityID) (*incident.Incident, error) {
	i, ok := r.store.get(id)
	if !ok {
		return nil, incident.ErrNotFound
	}
	return i.Clone(), nil
}

func (r *MemoryIncidentRepository) Search(q incident.Query) ([]*incident.Incident, int, error) {
	matched := filterIncidents(r.store.all(), q)
	total := len(matched)
	return cloneIncidents(pageIncidents(matched, q.Limit, q.Offset)), total, nil
}

func (r *MemoryIncidentRepository) FindPendingValidation() ([]*incident.Incident, error) {
	var result []*incident.Incident
	for _, i := range r.store.all() {
		if i.IsPending && i.Status == incident.StatusPending {
			result = append(result, i.Clone())
		}
	}
	return result, nil
}

func (r *MemoryIncidentRepository) FindByTriggerActivity(activityID domain.EntityID) ([]*incident.Incident, error) {
	var result []*incident.Incident
	for _, i := range r.store.all() {
		if i.TriggerActivityID == string(activityID) {
			result = append(result, i.Clone())
		}
	}
	return result, nil
}

func (r *MemoryIncidentRepository) Save(i *incident.Incident) error {
	r.store.put(i.ID(), i.Clone())
	return nil
}

func (r *MemoryIncidentRepository) FindAll() ([]*incident.Incident, error) {
	return cloneIncidents(r.store.all()), nil
}

func cloneIncidents(items []*incident.Incident) []*incident.Incident {
	out := make([]*incident.Incident, len(items))
	for i, inc := range items {
		out[i] = inc.Clone()
	}
	return out
}

// Compile-time verification
var _ incident.Repository = (*MemoryIncidentRepository)(nil)

// ---------------------------------------------------------------------------
// Rule repository (in-memory)
// ---------------------------------------------------------------------------

// MemoryRuleRepository is the in-memory implementation of rules.Repository.
type MemoryRuleRepository struct {
	store *memStore[rules.CreationRule]
}

// NewMemoryRuleRepository creates an empty in-memory rule store.
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{store: newMemStore[rules.CreationRule]()}
}

func (r *MemoryRuleRepository) FindByID(id domain.EntityID) (*rules.CreationRule, error) {
	rule, ok := r.store.get(id)
	if !ok {
		return nil, rules.ErrRuleNotFound
	}
	return rule.Clone(), nil
}

func (r *MemoryRuleRepository) FindEnabled() ([]*rules.CreationRule, error) {
	var result []*rules.CreationRule
	for _, rule := range r.store.all() {
		if rule.Enabled {
			result = append(result, rule.Clone())
		}
	}
	return result, nil
}

func (r *MemoryRuleRepository) FindAll() ([]*rules.CreationRule, error) {
	return cloneRules(r.store.all()), nil
}

func (r *MemoryRuleRepository) Save(rule *rules.CreationRule) error {
	if rule.ID.IsZero() {
		rule.ID = domain.NewID()
	}
	r.store.put(rule.ID, rule.Clone())
	return nil
}

func cloneRules(items []*rules.CreationRule) []*rules.CreationRule {
	out := make([]*rules.CreationRule, len(items))
	for i, rule := range items {
		out[i] = rule.Clone()
	}
	return out
}

func (r *MemoryRuleRepository) Delete(id domain.EntityID) error {
	if !r.store.remove(id) {
		return rules.ErrRuleNotFound
	}
	return nil
}

// Compile-time verification
var _ rules.Repository = (*MemoryRuleRepository)(nil)
