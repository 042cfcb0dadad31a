// Package proximity precomputes which buildings lie within the distance
// limit of each other.
package proximity

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultDistanceLimit is the adjacency threshold in map units (metres in
// the national grid).
const DefaultDistanceLimit = 300.0

type cell struct{ x, y int64 }

// Index is a symmetric, irreflexive adjacency relation over building ids:
// a is adjacent to b iff their planar distance is at most the limit.
// An Index is immutable once built and safe to share.
type Index struct {
	limit     float64
	adjacency map[int64][]int64
	filter    map[int64]struct{}
}

// New computes adjacency for all located buildings. Buildings are bucketed
// into square cells of side limit, so only the 3x3 neighbourhood of each
// cell is compared.
func New(points map[int64]orb.Point, limit float64) *Index {
	if limit <= 0 {
		limit = DefaultDistanceLimit
	}
	ids := make([]int64, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	grid := make(map[cell][]int64)
	for _, id := range ids {
		c := cellOf(points[id], limit)
		grid[c] = append(grid[c], id)
	}

	adjacency := make(map[int64][]int64, len(ids))
	for _, id := range ids {
		p := points[id]
		c := cellOf(p, limit)
		var near []int64
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, other := range grid[cell{c.x + dx, c.y + dy}] {
					if other == id {
						continue
					}
					if planar.Distance(p, points[other]) <= limit {
						near = append(near, other)
					}
				}
			}
		}
		sort.Slice(near, func(i, j int) bool { return near[i] < near[j] })
		adjacency[id] = near
	}
	return &Index{limit: limit, adjacency: adjacency}
}

func cellOf(p orb.Point, size float64) cell {
	return cell{int64(math.Floor(p[0] / size)), int64(math.Floor(p[1] / size))}
}

// Limit returns the distance limit the index was built with.
func (ix *Index) Limit() float64 {
	return ix.limit
}

// Restrict returns a view of the index limited to ids. The underlying
// adjacency is shared, not recomputed. Restricting a restricted view
// intersects the two id sets.
func (ix *Index) Restrict(ids []int64) *Index {
	filter := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if ix.member(id) {
			filter[id] = struct{}{}
		}
	}
	return &Index{limit: ix.limit, adjacency: ix.adjacency, filter: filter}
}

func (ix *Index) member(id int64) bool {
	if ix.filter == nil {
		return true
	}
	_, ok := ix.filter[id]
	return ok
}

// Neighbors returns the ids adjacent to id, ascending.
func (ix *Index) Neighbors(id int64) []int64 {
	if !ix.member(id) {
		return nil
	}
	all := ix.adjacency[id]
	if ix.filter == nil {
		return append([]int64(nil), all...)
	}
	out := make([]int64, 0, len(all))
	for _, other := range all {
		if ix.member(other) {
			out = append(out, other)
		}
	}
	return out
}

// Adjacent reports whether a and b are within the distance limit.
func (ix *Index) Adjacent(a, b int64) bool {
	if a == b || !ix.member(a) || !ix.member(b) {
		return false
	}
	near := ix.adjacency[a]
	i := sort.Search(len(near), func(i int) bool { return near[i] >= b })
	return i < len(near) && near[i] == b
}

// Len returns the number of buildings visible through the index.
func (ix *Index) Len() int {
	if ix.filter == nil {
		return len(ix.adjacency)
	}
	n := 0
	for id := range ix.filter {
		if _, ok := ix.adjacency[id]; ok {
			n++
		}
	}
	return n
}
