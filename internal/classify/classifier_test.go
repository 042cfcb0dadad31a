package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kohde-resolver/internal/model"
)

func snapshot(code string, inhabitants ...int64) model.BuildingSnapshot {
	return model.BuildingSnapshot{
		Building:      model.Building{ID: 1, UsageCode: code},
		InhabitantIDs: inhabitants,
	}
}

func TestIsSignificant(t *testing.T) {
	c := New(model.DefaultCodeTables())

	tests := []struct {
		name     string
		snapshot model.BuildingSnapshot
		want     bool
	}{
		{name: "detached house", snapshot: snapshot("011"), want: true},
		{name: "apartment block", snapshot: snapshot("039"), want: true},
		{name: "care home", snapshot: snapshot("621"), want: true},
		{name: "empty outbuilding", snapshot: snapshot("941"), want: false},
		{name: "inhabited outbuilding", snapshot: snapshot("941", 7), want: true},
		{name: "unclassified without inhabitants", snapshot: snapshot(""), want: false},
		{name: "unknown code", snapshot: snapshot("XYZ"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsSignificant(tt.snapshot))
		})
	}
}

func TestSaunaIsNeverAnAnchor(t *testing.T) {
	tables := model.NewCodeTables([]model.UsageClass{
		{Code: "931", Name: "Sauna", Sauna: true, Significant: true},
	})
	c := New(tables)

	s := snapshot("931")
	assert.True(t, c.IsSignificant(s), "a sauna may pass the allow-list")
	assert.True(t, c.IsSauna(s))
	assert.False(t, c.CanAnchor(s))
	assert.False(t, c.CanAnchor(snapshot("931", 3)), "inhabited sauna still cannot anchor")
}

func TestCheck(t *testing.T) {
	c := New(nil)

	require.NoError(t, c.Check(model.Building{ID: 1, UsageCode: "011"}))
	require.NoError(t, c.Check(model.Building{ID: 2}))

	err := c.Check(model.Building{ID: 3, UsageCode: "XYZ"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUsageCode)
	assert.Contains(t, err.Error(), "XYZ")
}
