package pipeline

import (
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/audit"
	"github.com/kohde-resolver/internal/classify"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/proximity"
)

// RunCache holds everything derived from the extract for one run: building
// snapshots at the reference date, the classifier and the proximity index.
// It is built once and only read afterwards.
type RunCache struct {
	AsOf           time.Time
	Classifier     *classify.Classifier
	Snapshots      map[int64]model.BuildingSnapshot
	Decommissioned map[int64]struct{}
	Index          *proximity.Index
}

// NewRunCache snapshots buildings at asOf. Decommissioned buildings are kept
// aside; buildings with an unknown usage code are skipped through tracker.
func NewRunCache(buildings []model.Building, tables *model.CodeTables, asOf time.Time, distanceLimit float64, tracker *audit.Tracker) *RunCache {
	c := &RunCache{
		AsOf:           model.Day(asOf),
		Classifier:     classify.New(tables),
		Snapshots:      make(map[int64]model.BuildingSnapshot, len(buildings)),
		Decommissioned: make(map[int64]struct{}),
	}
	points := make(map[int64]orb.Point, len(buildings))
	for _, b := range buildings {
		if b.Decommissioned(c.AsOf) {
			c.Decommissioned[b.ID] = struct{}{}
			continue
		}
		if err := c.Classifier.Check(b); err != nil {
			tracker.Skip(audit.ReasonUnknownUsageCode, err, zap.Int64("building_id", b.ID), zap.String("usage_code", b.UsageCode))
			continue
		}
		c.Snapshots[b.ID] = b.SnapshotAt(c.AsOf)
		if b.Location != nil {
			points[b.ID] = *b.Location
		}
	}
	c.Index = proximity.New(points, distanceLimit)
	return c
}

// Usable reports whether the building may take part in the run.
func (c *RunCache) Usable(id int64) bool {
	_, ok := c.Snapshots[id]
	return ok
}

// Snapshot returns the snapshots of ids that are usable, in id order.
func (c *RunCache) Snapshot(ids []int64) []model.BuildingSnapshot {
	out := make([]model.BuildingSnapshot, 0, len(ids))
	for _, id := range model.SortedUnique(ids) {
		if s, ok := c.Snapshots[id]; ok {
			out = append(out, s)
		}
	}
	return out
}
