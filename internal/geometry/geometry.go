// Package geometry provides the planar measurements used to judge whether a
// set of buildings can plausibly form one facility.
package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MaxPairwiseDistance returns the greatest planar distance between any two
// points. By convention it is +Inf for fewer than two points: a degenerate
// set has no measurable extent, and callers must treat it explicitly rather
// than read it as zero.
func MaxPairwiseDistance(points []orb.Point) float64 {
	if len(points) < 2 {
		return math.Inf(1)
	}
	// The diameter of a point set is realised between two hull vertices.
	hull := ConvexHull(points)
	if len(hull) == 1 {
		return 0
	}
	max := 0.0
	for i := 0; i < len(hull); i++ {
		for j := i + 1; j < len(hull); j++ {
			if d := planar.Distance(hull[i], hull[j]); d > max {
				max = d
			}
		}
	}
	return max
}

// ConvexHullArea returns the area of the convex hull of points dilated by
// buffer. The buffer keeps collinear and coincident point sets from
// collapsing to zero area. The dilation is exact for a convex hull:
// area + perimeter*buffer + pi*buffer^2. An empty set has zero area.
func ConvexHullArea(points []orb.Point, buffer float64) float64 {
	if len(points) == 0 {
		return 0
	}
	hull := ConvexHull(points)
	ring := make(orb.Ring, 0, len(hull)+1)
	ring = append(ring, hull...)
	ring = append(ring, hull[0])

	area := 0.0
	if len(hull) >= 3 {
		area = math.Abs(planar.Area(ring))
	}
	perimeter := planar.Length(ring)
	if buffer < 0 {
		buffer = 0
	}
	return area + perimeter*buffer + math.Pi*buffer*buffer
}

// ConvexHull returns the hull vertices in counter-clockwise order starting
// from the lowest-x, lowest-y point, without repeating the first vertex.
// Collinear points on hull edges are dropped. The result depends only on
// the point multiset, not on input order.
func ConvexHull(points []orb.Point) []orb.Point {
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})
	pts = dedupe(pts)
	if len(pts) <= 2 {
		return pts
	}

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func dedupe(sorted []orb.Point) []orb.Point {
	out := sorted[:0]
	for _, p := range sorted {
		if len(out) > 0 && p.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}
