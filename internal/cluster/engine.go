// Package cluster partitions candidate buildings into groups that can each
// become one facility: first by spatial proximity, then by dominant owner,
// then by shared address.
package cluster

import (
	"sort"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/proximity"
)

// Cluster is a set of buildings destined to become at most one facility.
// Members are the anchors produced by partitioning; Auxiliary holds the
// non-significant buildings attached afterwards. Both are sorted.
type Cluster struct {
	Members   []int64
	Auxiliary []int64
	Seeded    bool
}

// BuildingIDs returns members and auxiliary buildings, sorted.
func (c Cluster) BuildingIDs() []int64 {
	all := make([]int64, 0, len(c.Members)+len(c.Auxiliary))
	all = append(all, c.Members...)
	all = append(all, c.Auxiliary...)
	return model.SortedUnique(all)
}

// Engine partitions buildings using a run-scoped proximity index.
type Engine struct {
	index *proximity.Index
}

// NewEngine creates a clustering engine.
func NewEngine(index *proximity.Index) *Engine {
	return &Engine{index: index}
}

// Partition runs the spatial, ownership and address passes over snapshots.
// Buildings listed in seed are forced into one cluster regardless of
// distance and that cluster is never split; the other buildings of its
// spatial component are partitioned as usual. The result is deterministic
// for a given input set: components are ordered by their smallest building
// id and ties in the ownership and address passes go to the lowest party or
// address id.
func (e *Engine) Partition(snapshots []model.BuildingSnapshot, seed []int64) []Cluster {
	if len(snapshots) == 0 {
		return nil
	}
	byID := make(map[int64]model.BuildingSnapshot, len(snapshots))
	for _, s := range snapshots {
		byID[s.ID] = s
	}
	seedSet := make(map[int64]bool, len(seed))
	for _, id := range seed {
		seedSet[id] = true
	}

	var clusters []Cluster
	for _, comp := range e.components(byID, seed) {
		if !comp.seeded {
			clusters = append(clusters, split(comp.ids, byID)...)
			continue
		}
		var forced []int64
		rest := make(map[int64]model.BuildingSnapshot)
		for _, id := range comp.ids {
			if seedSet[id] {
				forced = append(forced, id)
			} else {
				rest[id] = byID[id]
			}
		}
		clusters = append(clusters, Cluster{Members: forced, Seeded: true})
		if len(rest) == 0 {
			continue
		}
		for _, sub := range e.components(rest, nil) {
			clusters = append(clusters, split(sub.ids, byID)...)
		}
	}
	return clusters
}

// split runs the ownership and address passes over one spatial component.
func split(ids []int64, byID map[int64]model.BuildingSnapshot) []Cluster {
	if len(ids) == 1 {
		return []Cluster{{Members: ids}}
	}
	owners := func(id int64) []int64 { return byID[id].OwnerIDs }
	addresses := func(id int64) []int64 { return byID[id].AddressIDs }
	var out []Cluster
	for _, ownerGroup := range peel(ids, owners) {
		for _, addressGroup := range peel(ownerGroup, addresses) {
			out = append(out, Cluster{Members: addressGroup})
		}
	}
	return out
}

type component struct {
	ids    []int64
	seeded bool
}

// components computes connected components of the adjacency restricted to
// the input, i.e. the transitive closure of "within the distance limit".
func (e *Engine) components(byID map[int64]model.BuildingSnapshot, seed []int64) []component {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	ids = model.SortedUnique(ids)

	uf := newUnionFind(ids)
	view := e.index.Restrict(ids)
	for _, id := range ids {
		for _, other := range view.Neighbors(id) {
			uf.union(id, other)
		}
	}

	var seeded []int64
	for _, id := range model.SortedUnique(seed) {
		if _, ok := byID[id]; ok {
			seeded = append(seeded, id)
		}
	}
	for i := 1; i < len(seeded); i++ {
		uf.union(seeded[0], seeded[i])
	}

	groups := make(map[int64][]int64)
	for _, id := range ids {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([]component, 0, len(groups))
	for _, members := range groups {
		c := component{ids: members}
		if len(seeded) > 0 && uf.find(members[0]) == uf.find(seeded[0]) {
			c.seeded = true
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ids[0] < out[j].ids[0] })
	return out
}

// peel repeatedly takes the key shared by the most remaining buildings and
// splits off every remaining building carrying it. Ties go to the lowest
// key. Buildings without any key form one residual group, emitted last.
// ids must be sorted; every group comes out sorted.
func peel(ids []int64, keys func(int64) []int64) [][]int64 {
	var groups [][]int64
	remaining := ids
	for len(remaining) > 0 {
		counts := make(map[int64]int)
		for _, id := range remaining {
			for _, k := range keys(id) {
				counts[k]++
			}
		}
		if len(counts) == 0 {
			groups = append(groups, remaining)
			break
		}

		best, bestCount := int64(0), 0
		for k, n := range counts {
			if n > bestCount || (n == bestCount && k < best) {
				best, bestCount = k, n
			}
		}

		var group, rest []int64
		for _, id := range remaining {
			if hasKey(keys(id), best) {
				group = append(group, id)
			} else {
				rest = append(rest, id)
			}
		}
		groups = append(groups, group)
		remaining = rest
	}
	return groups
}

func hasKey(keys []int64, k int64) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind(ids []int64) *unionFind {
	parent := make(map[int64]int64, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(id int64) int64 {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

// union keeps the smaller id as root so roots are stable across runs.
func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
