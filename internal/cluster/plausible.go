package cluster

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/kohde-resolver/internal/geometry"
	"github.com/kohde-resolver/internal/model"
)

// ErrImplausibleCluster is returned for a cluster whose spatial extent is too
// large to be one facility.
var ErrImplausibleCluster = errors.New("implausible cluster")

// Limits bound the spatial extent of one facility.
type Limits struct {
	Distance float64
	Area     float64
	Buffer   float64
}

// DefaultLimits returns the reference thresholds.
func DefaultLimits() Limits {
	return Limits{Distance: 300, Area: 100000, Buffer: 10}
}

// CheckPlausible rejects a cluster whose buffered convex hull exceeds the area
// limit, or, for unseeded clusters with at least two located buildings, whose
// maximum pairwise distance exceeds the distance limit. Buildings without a
// location do not contribute.
func CheckPlausible(c Cluster, buildings map[int64]model.BuildingSnapshot, limits Limits) error {
	var points []orb.Point
	for _, id := range c.BuildingIDs() {
		if s, ok := buildings[id]; ok && s.Location != nil {
			points = append(points, *s.Location)
		}
	}
	if len(points) == 0 {
		return nil
	}
	if area := geometry.ConvexHullArea(points, limits.Buffer); limits.Area > 0 && area > limits.Area {
		return fmt.Errorf("%w: hull area %.0f exceeds %.0f", ErrImplausibleCluster, area, limits.Area)
	}
	if c.Seeded || len(points) < 2 {
		return nil
	}
	if d := geometry.MaxPairwiseDistance(points); limits.Distance > 0 && d > limits.Distance {
		return fmt.Errorf("%w: buildings %.0f apart, limit %.0f", ErrImplausibleCluster, d, limits.Distance)
	}
	return nil
}

// SplitByAddress is the first fallback for an implausible cluster: members
// with the same set of addresses stay together, members without an address
// stand alone. Groups are ordered by their smallest id. It returns nil when
// the cluster would come out unchanged. Auxiliary buildings are dropped.
func SplitByAddress(c Cluster, buildings map[int64]model.BuildingSnapshot) []Cluster {
	groups := make(map[string][]int64)
	var out []Cluster
	for _, id := range c.Members {
		addresses := buildings[id].AddressIDs
		if len(addresses) == 0 {
			out = append(out, Cluster{Members: []int64{id}})
			continue
		}
		key := fmt.Sprint(model.SortedUnique(append([]int64(nil), addresses...)))
		groups[key] = append(groups[key], id)
	}
	for _, ids := range groups {
		out = append(out, Cluster{Members: model.SortedUnique(ids)})
	}
	if len(out) < 2 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}

// SplitPerBuilding is the last fallback for an implausible cluster: every member
// becomes a cluster of its own. Auxiliary buildings are dropped and must be
// re-attached to the new clusters.
func SplitPerBuilding(c Cluster) []Cluster {
	out := make([]Cluster, 0, len(c.Members))
	for _, id := range c.Members {
		out = append(out, Cluster{Members: []int64{id}})
	}
	return out
}
