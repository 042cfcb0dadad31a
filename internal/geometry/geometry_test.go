package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestMaxPairwiseDistance(t *testing.T) {
	tests := []struct {
		name   string
		points []orb.Point
		want   float64
	}{
		{name: "empty set is infinite", points: nil, want: math.Inf(1)},
		{name: "single point is infinite", points: []orb.Point{{10, 10}}, want: math.Inf(1)},
		{name: "two points", points: []orb.Point{{0, 0}, {3, 4}}, want: 5},
		{name: "coincident points", points: []orb.Point{{2, 2}, {2, 2}}, want: 0},
		{name: "square diagonal", points: []orb.Point{{0, 0}, {0, 10}, {10, 0}, {10, 10}, {5, 5}}, want: math.Sqrt(200)},
		{name: "collinear", points: []orb.Point{{0, 0}, {50, 0}, {300, 0}, {120, 0}}, want: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxPairwiseDistance(tt.points)
			if math.IsInf(tt.want, 1) {
				assert.True(t, math.IsInf(got, 1))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMaxPairwiseDistanceIsOrderIndependent(t *testing.T) {
	a := []orb.Point{{0, 0}, {7, 1}, {3, 9}, {-4, 2}}
	b := []orb.Point{{3, 9}, {-4, 2}, {0, 0}, {7, 1}}
	assert.Equal(t, MaxPairwiseDistance(a), MaxPairwiseDistance(b))
}

func TestConvexHullArea(t *testing.T) {
	buffer := 10.0
	circle := math.Pi * buffer * buffer

	t.Run("empty set has no area", func(t *testing.T) {
		assert.Equal(t, 0.0, ConvexHullArea(nil, buffer))
	})

	t.Run("single point is the buffer disc", func(t *testing.T) {
		assert.InDelta(t, circle, ConvexHullArea([]orb.Point{{5, 5}}, buffer), 1e-9)
	})

	t.Run("coincident points do not collapse to zero", func(t *testing.T) {
		got := ConvexHullArea([]orb.Point{{5, 5}, {5, 5}, {5, 5}}, buffer)
		assert.InDelta(t, circle, got, 1e-9)
	})

	t.Run("segment is a stadium", func(t *testing.T) {
		got := ConvexHullArea([]orb.Point{{0, 0}, {100, 0}, {40, 0}}, buffer)
		assert.InDelta(t, 2*100*buffer+circle, got, 1e-9)
	})

	t.Run("square", func(t *testing.T) {
		pts := []orb.Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {50, 50}}
		got := ConvexHullArea(pts, buffer)
		assert.InDelta(t, 100*100+400*buffer+circle, got, 1e-6)
	})

	t.Run("no buffer", func(t *testing.T) {
		pts := []orb.Point{{0, 0}, {10, 0}, {0, 10}}
		assert.InDelta(t, 50, ConvexHullArea(pts, 0), 1e-9)
	})

	t.Run("order independent", func(t *testing.T) {
		a := []orb.Point{{0, 0}, {30, 5}, {12, 40}, {3, 3}}
		b := []orb.Point{{12, 40}, {3, 3}, {30, 5}, {0, 0}}
		assert.Equal(t, ConvexHullArea(a, buffer), ConvexHullArea(b, buffer))
	})
}

func TestConvexHullDropsInteriorPoints(t *testing.T) {
	hull := ConvexHull([]orb.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}, {5, 0}})
	assert.Len(t, hull, 4)
	assert.NotContains(t, hull, orb.Point{5, 5})
	assert.NotContains(t, hull, orb.Point{5, 0})
}
