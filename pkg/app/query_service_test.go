package app

import (
	"errors"
	"testing"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/infrastructure/persistence"
)

// countingActivityRepo tracks read traffic so tests can assert cache hits.
type countingActivityRepo struct {
	*persistence.MemoryActivityRepository
	searchCalls int
	findCalls   int
	statsCalls  int
	failReads   error
}

func (r *countingActivityRepo) Search(q activity.Query) ([]*activity.Activity, int, error) {
	r.searchCalls++
	if r.failReads != nil {
		return nil, 0, r.failReads
	}
	return r.MemoryActivityRepository.Search(q)
}

func (r *countingActivityRepo) FindByID(id domain.EntityID) (*activity.Activity, error) {
	r.findCalls++
	if r.failReads != nil {
		return nil, r.failReads
	}
	return r.MemoryActivityRepository.FindByID(id)
}

func (r *countingActivityRepo) GetStats(q activity.Query) (*activity.Stats, error) {
	r.statsCalls++
	return r.MemoryActivityRepository.GetStats(q)
}

func newQueryFixture(t *testing.T) (*ActivityQueryService, *countingActivityRepo, *QueryCache) {
	t.Helper()
	repo := &countingActivityRepo{MemoryActivityRepository: persistence.NewMemoryActivityRepository()}
	cache := NewQueryCache()
	svc := NewActivityQueryService(repo, cache, nil)

	for i := 0; i < 3; i++ {
		a, err := activity.New(activity.CreateParams{
			Type:      activity.TypeAlarm,
			Title:     "alarm",
			Priority:  domain.PriorityMedium,
			CreatedBy: "tester",
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		a.PullEvents()
		if err := repo.MemoryActivityRepository.Save(a); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return svc, repo, cache
}

func TestSearchIdenticalFilterHitsCache(t *testing.T) {
	svc, repo, _ := newQueryFixture(t)
	q := activity.Query{Types: []activity.Type{activity.TypeAlarm}, Limit: 10}

	first, err := svc.Search(q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := svc.Search(q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.searchCalls != 1 {
		t.Errorf("repo searched %d times, want 1 (second call cached)", repo.searchCalls)
	}
	if first != second {
		t.Error("cached call returned a different result object")
	}
	if first.Total != 3 {
		t.Errorf("Total = %d, want 3", first.Total)
	}

	// A different filter misses the cache.
	if _, err := svc.Search(activity.Query{Limit: 5}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.searchCalls != 2 {
		t.Errorf("repo searched %d times, want 2", repo.searchCalls)
	}
}

func TestSearchCacheExpires(t *testing.T) {
	svc, repo, cache := newQueryFixture(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	q := activity.Query{Limit: 10}
	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}

	// List entries live 30s; text searches 120s.
	now = now.Add(31 * time.Second)
	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.searchCalls != 2 {
		t.Errorf("expired list entry not refetched: %d calls", repo.searchCalls)
	}

	textQ := activity.Query{Text: "alarm"}
	if _, err := svc.Search(textQ); err != nil {
		t.Fatalf("Search: %v", err)
	}
	now = now.Add(100 * time.Second)
	if _, err := svc.Search(textQ); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.searchCalls != 3 {
		t.Errorf("text search entry expired early: %d calls", repo.searchCalls)
	}
}

func TestGetByIDCached(t *testing.T) {
	svc, repo, _ := newQueryFixture(t)
	res, err := svc.Search(activity.Query{Limit: 1})
	if err != nil || len(res.Items) == 0 {
		t.Fatalf("Search: %v", err)
	}
	id := res.Items[0].ID()

	if _, err := svc.GetByID(id); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := svc.GetByID(id); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if repo.findCalls != 1 {
		t.Errorf("repo loaded %d times, want 1", repo.findCalls)
	}
}

func TestActivityEventInvalidatesDerivedCaches(t *testing.T) {
	svc, repo, _ := newQueryFixture(t)
	q := activity.Query{Limit: 10}

	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := svc.Stats(activity.Query{}); err != nil {
		t.Fatalf("Stats: %v", err)
	}

	svc.onEvent(domain.NewEvent(domain.EventActivityStatusChanged, "act-1", "op", nil))

	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := svc.Stats(activity.Query{}); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if repo.searchCalls != 2 || repo.statsCalls != 2 {
		t.Errorf("derived caches not invalidated: %d searches, %d stats", repo.searchCalls, repo.statsCalls)
	}
}

func TestForeignEventLeavesCacheAlone(t *testing.T) {
	svc, repo, _ := newQueryFixture(t)
	q := activity.Query{Limit: 10}

	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	svc.onEvent(domain.NewEvent(domain.EventSystemStartup, "argus", "system", nil))
	if _, err := svc.Search(q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.searchCalls != 1 {
		t.Errorf("non-activity event invalidated the cache: %d calls", repo.searchCalls)
	}
}

func TestLastErrorSurfacesReadFailures(t *testing.T) {
	svc, repo, _ := newQueryFixture(t)
	if err := svc.LastError(); err != nil {
		t.Fatalf("LastError before any failure: %v", err)
	}

	readErr := errors.New("disk error")
	repo.failReads = readErr
	if _, err := svc.Search(activity.Query{Limit: 1}); !errors.Is(err, readErr) {
		t.Fatalf("Search error = %v, want the repo failure", err)
	}
	if !errors.Is(svc.LastError(), readErr) {
		t.Errorf("LastError = %v, want the repo failure", svc.LastError())
	}
}
