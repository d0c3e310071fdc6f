package triage

import (
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
)

// DefaultClusterWindow bounds proximity when the caller gives none.
const DefaultClusterWindow = 15 * time.Minute

// Cluster is a reference activity plus its spatial/temporal neighbours.
// Purely a read-model grouping; members are the stored aggregates.
type Cluster struct {
	Reference *activity.Activity   `json:"reference"`
	Members   []*activity.Activity `json:"members"`
	Window    time.Duration        `json:"window"`
}

// Size counts the reference plus its neighbours.
func (c *Cluster) Size() int {
	return 1 + len(c.Members)
}

// Clusterer groups activities around a reference for display.
type Clusterer struct {
	repo activity.Repository
}

// NewClusterer builds a read-only clusterer over the activity store.
func NewClusterer(repo activity.Repository) *Clusterer {
	return &Clusterer{repo: repo}
}

// Around returns the cluster centred on the given activity: everything
// within the window of its creation time, in the same building/zone when
// the reference has one.
func (c *Clusterer) Around(id domain.EntityID, window time.Duration) (*Cluster, error) {
	if window <= 0 {
		window = DefaultClusterWindow
	}

	ref, err := c.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	members, err := c.repo.FindRelated(id, window)
	if err != nil {
		return nil, err
	}

	return &Cluster{Reference: ref, Members: members, Window: window}, nil
}
