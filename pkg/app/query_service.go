package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/logger"
)

// ---------------------------------------------------------------------------
// Activity query service — the cached read path
// ---------------------------------------------------------------------------

// SearchResult carries a page of activities plus the total match count.
type SearchResult struct {
	Items []*activity.Activity `json:"items"`
	Total int                  `json:"total"`
}

// ActivityQueryService serves reads through a TTL cache. Cache keys for
// list queries are the serialized filter, so identical filters share an
// entry. Domain events invalidate the derived partitions; single-entity
// entries are kept fresh by the write path and expire on their own TTL.
type ActivityQueryService struct {
	repo  activity.Repository
	cache *QueryCache

	mu      sync.Mutex
	lastErr error
}

// NewActivityQueryService wires the activity read path. When a bus is
// given, every activity event drops the derived cache partitions.
func NewActivityQueryService(repo activity.Repository, cache *QueryCache, bus domain.EventBus) *ActivityQueryService {
	s := &ActivityQueryService{repo: repo, cache: cache}
	if bus != nil {
		bus.SubscribeAll(s.onEvent)
	}
	return s
}

// GetByID returns one activity, cached for TTLEntity.
func (s *ActivityQueryService) GetByID(id domain.EntityID) (*activity.Activity, error) {
	if cached, ok := s.cache.Get(PartitionActivities, string(id)); ok {
		if a, ok := cached.(*activity.Activity); ok {
			return a, nil
		}
	}
	a, err := s.repo.FindByID(id)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionActivities, string(id), a, TTLEntity)
	return a, nil
}

// Search runs a filtered, sorted, paged query. Plain list filters cache
// for TTLList; free-text searches are costlier and cache for TTLSearch.
func (s *ActivityQueryService) Search(q activity.Query) (*SearchResult, error) {
	key := queryKey("act", q)
	if key != "" {
		if cached, ok := s.cache.Get(PartitionQueries, key); ok {
			if res, ok := cached.(*SearchResult); ok {
				return res, nil
			}
		}
	}

	items, total, err := s.repo.Search(q)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	res := &SearchResult{Items: items, Total: total}

	if key != "" {
		ttl := TTLList
		if q.Text != "" {
			ttl = TTLSearch
		}
		s.cache.Set(PartitionQueries, key, res, ttl)
	}
	return res, nil
}

// Stats returns aggregate statistics for the filter, cached for TTLStats.
func (s *ActivityQueryService) Stats(q activity.Query) (*activity.Stats, error) {
	key := queryKey("act", q)
	if key != "" {
		if cached, ok := s.cache.Get(PartitionStats, key); ok {
			if st, ok := cached.(*activity.Stats); ok {
				return st, nil
			}
		}
	}

	stats, err := s.repo.GetStats(q)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	if key != "" {
		s.cache.Set(PartitionStats, key, stats, TTLStats)
	}
	return stats, nil
}

// RequiringAttention returns unresolved critical/high and escalated
// activities. Cached on the shortest TTL; this list drives dashboards.
func (s *ActivityQueryService) RequiringAttention() ([]*activity.Activity, error) {
	const key = "act:attention"
	if cached, ok := s.cache.Get(PartitionAttention, key); ok {
		if items, ok := cached.([]*activity.Activity); ok {
			return items, nil
		}
	}
	items, err := s.repo.FindRequiringAttention()
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionAttention, key, items, TTLAttention)
	return items, nil
}

// Overdue returns unresolved activities past their response deadline.
func (s *ActivityQueryService) Overdue(now time.Time) ([]*activity.Activity, error) {
	const key = "act:overdue"
	if cached, ok := s.cache.Get(PartitionAttention, key); ok {
		if items, ok := cached.([]*activity.Activity); ok {
			return items, nil
		}
	}
	items, err := s.repo.FindOverdue(now)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionAttention, key, items, TTLAttention)
	return items, nil
}

// Related returns activities near the given one in time and place.
func (s *ActivityQueryService) Related(id domain.EntityID, window time.Duration) ([]*activity.Activity, error) {
	key := fmt.Sprintf("act:related:%s:%s", id, window)
	if cached, ok := s.cache.Get(PartitionQueries, key); ok {
		if items, ok := cached.([]*activity.Activity); ok {
			return items, nil
		}
	}
	items, err := s.repo.FindRelated(id, window)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionQueries, key, items, TTLList)
	return items, nil
}

// LastError returns the most recent read failure, if any.
func (s *ActivityQueryService) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *ActivityQueryService) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logger.ErrorCF("queries", "Activity read failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// onEvent drops derived caches whenever the activity side changes. The
// aggregate's own entry is removed too; the next read reloads it.
func (s *ActivityQueryService) onEvent(e domain.Event) {
	if !strings.HasPrefix(string(e.EventType()), "activity.") {
		return
	}
	s.cache.Remove(PartitionActivities, string(e.AggregateID()))
	s.cache.Invalidate(PartitionQueries)
	s.cache.Invalidate(PartitionStats)
	s.cache.Invalidate(PartitionAttention)
}

// ---------------------------------------------------------------------------
// Incident query service
// ---------------------------------------------------------------------------

// IncidentSearchResult carries a page of incidents plus the total count.
type IncidentSearchResult struct {
	Items []*incident.Incident `json:"items"`
	Total int                  `json:"total"`
}

// IncidentQueryService is the cached read path for incidents.
type IncidentQueryService struct {
	repo  incident.Repository
	cache *QueryCache

	mu      sync.Mutex
	lastErr error
}

// NewIncidentQueryService wires the incident read path.
func NewIncidentQueryService(repo incident.Repository, cache *QueryCache, bus domain.EventBus) *IncidentQueryService {
	s := &IncidentQueryService{repo: repo, cache: cache}
	if bus != nil {
		bus.SubscribeAll(s.onEvent)
	}
	return s
}

// GetByID returns one incident, cached for TTLEntity.
func (s *IncidentQueryService) GetByID(id domain.EntityID) (*incident.Incident, error) {
	if cached, ok := s.cache.Get(PartitionIncidents, string(id)); ok {
		if inc, ok := cached.(*incident.Incident); ok {
			return inc, nil
		}
	}
	inc, err := s.repo.FindByID(id)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionIncidents, string(id), inc, TTLEntity)
	return inc, nil
}

// Search runs a filtered incident query, cached for TTLList.
func (s *IncidentQueryService) Search(q incident.Query) (*IncidentSearchResult, error) {
	key := queryKey("inc", q)
	if key != "" {
		if cached, ok := s.cache.Get(PartitionQueries, key); ok {
			if res, ok := cached.(*IncidentSearchResult); ok {
				return res, nil
			}
		}
	}
	items, total, err := s.repo.Search(q)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	res := &IncidentSearchResult{Items: items, Total: total}
	if key != "" {
		s.cache.Set(PartitionQueries, key, res, TTLList)
	}
	return res, nil
}

// PendingValidation returns incidents awaiting human confirmation.
func (s *IncidentQueryService) PendingValidation() ([]*incident.Incident, error) {
	const key = "inc:pending"
	if cached, ok := s.cache.Get(PartitionAttention, key); ok {
		if items, ok := cached.([]*incident.Incident); ok {
			return items, nil
		}
	}
	items, err := s.repo.FindPendingValidation()
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	s.cache.Set(PartitionAttention, key, items, TTLAttention)
	return items, nil
}

// ByTriggerActivity returns incidents opened from the given activity.
func (s *IncidentQueryService) ByTriggerActivity(activityID domain.EntityID) ([]*incident.Incident, error) {
	items, err := s.repo.FindByTriggerActivity(activityID)
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	return items, nil
}

// LastError returns the most recent read failure, if any.
func (s *IncidentQueryService) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *IncidentQueryService) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logger.ErrorCF("queries", "Incident read failed", map[string]interface{}{
		"error": err.Error(),
	})
}

func (s *IncidentQueryService) onEvent(e domain.Event) {
	if !strings.HasPrefix(string(e.EventType()), "incident.") {
		return
	}
	s.cache.Remove(PartitionIncidents, string(e.AggregateID()))
	s.cache.Invalidate(PartitionQueries)
	s.cache.Invalidate(PartitionStats)
	s.cache.Invalidate(PartitionAttention)
}

// queryKey serializes a filter into a stable cache key. An empty key
// (marshal failure) means the query bypasses the cache.
func queryKey(prefix string, q interface{}) string {
	raw, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return prefix + ":" + string(raw)
}
