package cluster

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/kohde-resolver/internal/model"
)

func located(id int64, x, y float64) model.BuildingSnapshot {
	p := orb.Point{x, y}
	return model.BuildingSnapshot{Building: model.Building{ID: id, Location: &p}}
}

func TestCheckPlausible(t *testing.T) {
	buildings := map[int64]model.BuildingSnapshot{
		1: located(1, 0, 0),
		2: located(2, 100, 0),
		3: located(3, 400, 0),
		4: located(4, 400, 400),
		5: located(5, 0, 400),
		6: {Building: model.Building{ID: 6}},
	}

	tests := []struct {
		name    string
		cluster Cluster
		wantErr bool
	}{
		{"close pair", Cluster{Members: []int64{1, 2}}, false},
		{"pair beyond distance limit", Cluster{Members: []int64{1, 3}}, true},
		{"seeded pair ignores distance", Cluster{Members: []int64{1, 3}, Seeded: true}, false},
		{"auxiliary counts", Cluster{Members: []int64{1}, Auxiliary: []int64{3}}, true},
		{"hull area beyond limit", Cluster{Members: []int64{1, 3, 4, 5}, Seeded: true}, true},
		{"single located building", Cluster{Members: []int64{1, 6}}, false},
		{"no located building", Cluster{Members: []int64{6}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPlausible(tt.cluster, buildings, DefaultLimits())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrImplausibleCluster)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitPerBuilding(t *testing.T) {
	c := Cluster{Members: []int64{1, 3}, Auxiliary: []int64{7}}

	assert.Equal(t, []Cluster{
		{Members: []int64{1}},
		{Members: []int64{3}},
	}, SplitPerBuilding(c))
}

func TestSplitByAddress(t *testing.T) {
	withAddresses := func(id int64, addresses ...int64) model.BuildingSnapshot {
		return model.BuildingSnapshot{Building: model.Building{ID: id}, AddressIDs: addresses}
	}
	buildings := map[int64]model.BuildingSnapshot{
		1: withAddresses(1, 100),
		2: withAddresses(2, 100, 200),
		3: withAddresses(3, 200, 100),
		4: withAddresses(4),
		5: withAddresses(5, 100),
	}

	tests := []struct {
		name    string
		cluster Cluster
		want    []Cluster
	}{
		{
			name:    "groups by address set",
			cluster: Cluster{Members: []int64{1, 2, 3, 4, 5}, Auxiliary: []int64{9}},
			want: []Cluster{
				{Members: []int64{1, 5}},
				{Members: []int64{2, 3}},
				{Members: []int64{4}},
			},
		},
		{name: "single address set", cluster: Cluster{Members: []int64{1, 5}}, want: nil},
		{name: "single building", cluster: Cluster{Members: []int64{4}}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitByAddress(tt.cluster, buildings))
		})
	}
}
