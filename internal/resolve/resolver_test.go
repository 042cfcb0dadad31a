package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
	"github.com/kohde-resolver/internal/store/memory"
)

var asOf = model.Date(2023, 2, 15)

func building(id int64, x float64, owners []model.Ownership, inhabitants []model.Inhabitancy) model.Building {
	p := orb.Point{x, 0}
	return model.Building{ID: id, ParcelID: "P1", UsageCode: "011", Location: &p, Owners: owners, Inhabitants: inhabitants}
}

func owned(party int64, start *time.Time) []model.Ownership {
	return []model.Ownership{{PartyID: party, Start: start}}
}

func snapshots(bs ...model.Building) []model.BuildingSnapshot {
	out := make([]model.BuildingSnapshot, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.SnapshotAt(asOf))
	}
	return out
}

// assertDisjoint checks that facilities with overlapping periods never share
// a building.
func assertDisjoint(t *testing.T, facilities []model.Facility) {
	t.Helper()
	for i := range facilities {
		for j := i + 1; j < len(facilities); j++ {
			a, b := facilities[i], facilities[j]
			if a.Period.Overlaps(b.Period) {
				assert.False(t, model.Intersects(a.Buildings, b.Buildings),
					"facilities %d and %d overlap in time and share buildings", a.ID, b.ID)
			}
		}
	}
}

func resolveInTx(t *testing.T, s *memory.Store, req Request) (Result, error) {
	t.Helper()
	var res Result
	err := s.RunInTx(context.Background(), func(st store.Stores) error {
		var err error
		res, err = New(zap.NewNop()).Resolve(context.Background(), st, req)
		return err
	})
	return res, err
}

// inhabitantChangeFixture has facility 1 over buildings {1,2} since
// 2022-01-01, while building 2's principal inhabitant changed on 2023-01-31.
func inhabitantChangeFixture() (*memory.Store, []model.Building) {
	s := memory.New()
	s.PutParties(
		model.Party{ID: 10, Name: "Virtanen Matti", Kind: model.PartyPerson},
		model.Party{ID: 20, Name: "Laine Liisa", Kind: model.PartyPerson},
		model.Party{ID: 21, Name: "Korhonen Pekka", Kind: model.PartyPerson},
	)
	a := building(1, 0, owned(10, model.DatePtr(2015, 1, 1)), nil)
	b := building(2, 50, owned(10, model.DatePtr(2015, 1, 1)), []model.Inhabitancy{
		{PartyID: 20, Start: model.DatePtr(2015, 1, 1), End: model.DatePtr(2023, 1, 30)},
		{PartyID: 21, Start: model.DatePtr(2023, 1, 31)},
	})
	s.PutBuildings(a, b)
	s.PutFacility(model.Facility{
		ID:        1,
		Name:      "Laine Liisa",
		Type:      model.FacilitySingleProperty,
		Period:    model.Period{Start: model.Date(2022, 1, 1)},
		Buildings: []int64{1, 2},
		Parties: []model.FacilityParty{
			{PartyID: 10, Role: model.RoleOwner},
			{PartyID: 20, Role: model.RoleInhabitant},
		},
	})
	s.PutDependent(model.DependentRecord{ID: 1, FacilityID: 1, Kind: model.DependentContract,
		Period: model.Period{Start: model.Date(2022, 6, 1), End: model.DatePtr(2023, 12, 31)}})
	s.PutDependent(model.DependentRecord{ID: 2, FacilityID: 1, Kind: model.DependentDecision,
		Period: model.Period{Start: model.Date(2023, 3, 1)}})
	s.PutDependent(model.DependentRecord{ID: 3, FacilityID: 1, Kind: model.DependentCollectionEvent,
		Period: model.Period{Start: model.Date(2022, 1, 1), End: model.DatePtr(2022, 12, 31)}})
	return s, []model.Building{a, b}
}

func TestResolveInhabitantChangeClosesAndSucceeds(t *testing.T) {
	s, bs := inhabitantChangeFixture()
	req := Request{Buildings: snapshots(bs...), Period: model.Period{Start: model.Date(2023, 1, 1)}, AsOf: asOf}

	res, err := resolveInTx(t, s, req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, []int64{1}, res.Closed)
	assert.Equal(t, 2, res.Migrated)
	assert.Equal(t, model.Date(2023, 1, 31), res.Facility.Period.Start)
	assert.Nil(t, res.Facility.Period.End)
	assert.Equal(t, []int64{1, 2}, res.Facility.Buildings)
	assert.Equal(t, []int64{10}, res.Facility.PartyIDs(model.RoleOwner))
	assert.Equal(t, []int64{21}, res.Facility.PartyIDs(model.RoleInhabitant))
	assert.Equal(t, "Korhonen Pekka", res.Facility.Name)

	facilities := s.Facilities()
	require.Len(t, facilities, 2)
	assert.Equal(t, model.DatePtr(2023, 1, 30), facilities[0].Period.End)
	assertDisjoint(t, facilities)

	successor := res.Facility.ID
	deps := s.Dependents()
	require.Len(t, deps, 4)
	assert.Equal(t, int64(1), deps[0].FacilityID)
	assert.Equal(t, model.DatePtr(2023, 1, 30), deps[0].Period.End, "straddling contract is truncated")
	assert.Equal(t, successor, deps[1].FacilityID, "later decision is reassigned")
	assert.Equal(t, int64(1), deps[2].FacilityID, "record ending before the close stays")
	assert.Equal(t, successor, deps[3].FacilityID)
	assert.Equal(t, int64(1), *deps[3].ContinuedFrom)
	assert.Equal(t, model.Date(2023, 1, 31), deps[3].Period.Start)
	assert.Equal(t, model.DatePtr(2023, 12, 31), deps[3].Period.End)
}

func TestResolveHandsOverFromPredecessorEndingDayBefore(t *testing.T) {
	s, bs := inhabitantChangeFixture()
	f := s.Facilities()[0]
	f.Period.End = model.DatePtr(2023, 1, 30)
	s.PutFacility(f)
	req := Request{Buildings: snapshots(bs...), Period: model.Period{Start: model.Date(2023, 1, 31)}, AsOf: asOf}

	res, err := resolveInTx(t, s, req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, model.Date(2023, 1, 31), res.Facility.Period.Start)
	assert.Empty(t, res.Closed, "predecessor already ends the day before")
	assert.Equal(t, 2, res.Migrated)

	facilities := s.Facilities()
	require.Len(t, facilities, 2)
	assert.Equal(t, model.DatePtr(2023, 1, 30), facilities[0].Period.End)
	assertDisjoint(t, facilities)

	successor := res.Facility.ID
	deps := s.Dependents()
	require.Len(t, deps, 4)
	assert.Equal(t, int64(1), deps[0].FacilityID)
	assert.Equal(t, model.DatePtr(2023, 1, 30), deps[0].Period.End)
	assert.Equal(t, successor, deps[1].FacilityID)
	assert.Equal(t, int64(1), deps[2].FacilityID)
	assert.Equal(t, successor, deps[3].FacilityID)
	assert.Equal(t, int64(1), *deps[3].ContinuedFrom)
	assert.Equal(t, model.DatePtr(2023, 12, 31), deps[3].Period.End)

	again, err := resolveInTx(t, s, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again.Outcome)
	assert.Len(t, s.Dependents(), 4)
}

func TestResolveIsIdempotent(t *testing.T) {
	s, bs := inhabitantChangeFixture()
	req := Request{Buildings: snapshots(bs...), Period: model.Period{Start: model.Date(2023, 1, 1)}, AsOf: asOf}

	first, err := resolveInTx(t, s, req)
	require.NoError(t, err)
	facilities, deps := s.Facilities(), s.Dependents()

	second, err := resolveInTx(t, s, req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnchanged, second.Outcome)
	assert.Equal(t, first.Facility.ID, second.Facility.ID)
	assert.Empty(t, second.Closed)
	assert.Zero(t, second.Migrated)
	assert.Equal(t, facilities, s.Facilities())
	assert.Equal(t, deps, s.Dependents())
}

func TestResolveReuse(t *testing.T) {
	outbuilding := building(3, 20, owned(10, nil), nil)
	outbuilding.UsageCode = "941"

	tests := []struct {
		name          string
		existing      model.Facility
		buildings     []model.Building
		period        model.Period
		wantOutcome   Outcome
		wantBuildings []int64
		wantEnd       *time.Time
	}{
		{
			name: "exact match",
			existing: model.Facility{ID: 1, Period: model.Period{Start: model.Date(2020, 1, 1)}, Buildings: []int64{1},
				Parties: []model.FacilityParty{{PartyID: 10, Role: model.RoleOwner}}},
			buildings:     []model.Building{building(1, 0, owned(10, nil), nil)},
			period:        model.Period{Start: model.Date(2023, 1, 1)},
			wantOutcome:   OutcomeUnchanged,
			wantBuildings: []int64{1},
		},
		{
			name: "strict subset gains the missing buildings",
			existing: model.Facility{ID: 1, Period: model.Period{Start: model.Date(2020, 1, 1)}, Buildings: []int64{1},
				Parties: []model.FacilityParty{{PartyID: 10, Role: model.RoleOwner}}},
			buildings:     []model.Building{building(1, 0, owned(10, nil), nil), outbuilding},
			period:        model.Period{Start: model.Date(2023, 1, 1)},
			wantOutcome:   OutcomeExtended,
			wantBuildings: []int64{1, 3},
		},
		{
			name: "validity widened to the target end",
			existing: model.Facility{ID: 1, Period: model.Period{Start: model.Date(2020, 1, 1), End: model.DatePtr(2023, 6, 30)},
				Buildings: []int64{1}, Parties: []model.FacilityParty{{PartyID: 10, Role: model.RoleOwner}}},
			buildings:     []model.Building{building(1, 0, owned(10, nil), nil)},
			period:        model.Period{Start: model.Date(2023, 1, 1), End: model.DatePtr(2023, 12, 31)},
			wantOutcome:   OutcomeExtended,
			wantBuildings: []int64{1},
			wantEnd:       model.DatePtr(2023, 12, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			s.PutParties(model.Party{ID: 10, Name: "Virtanen Matti", Kind: model.PartyPerson})
			s.PutBuildings(tt.buildings...)
			s.PutFacility(tt.existing)

			res, err := resolveInTx(t, s, Request{Buildings: snapshots(tt.buildings...), Period: tt.period, AsOf: asOf})
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.existing.ID, res.Facility.ID)
			assert.Equal(t, tt.wantBuildings, res.Facility.Buildings)
			assert.Equal(t, tt.wantEnd, res.Facility.Period.End)
			assert.Len(t, s.Facilities(), 1)
		})
	}
}

func TestResolveWideningStopsAtNextFacility(t *testing.T) {
	s := memory.New()
	b := building(1, 0, owned(10, nil), nil)
	s.PutBuildings(b)
	s.PutFacility(model.Facility{ID: 1, Period: model.Period{Start: model.Date(2020, 1, 1), End: model.DatePtr(2023, 6, 30)},
		Buildings: []int64{1}, Parties: []model.FacilityParty{{PartyID: 10, Role: model.RoleOwner}}})
	s.PutFacility(model.Facility{ID: 2, Period: model.Period{Start: model.Date(2023, 9, 1)},
		Buildings: []int64{1}, Parties: []model.FacilityParty{{PartyID: 11, Role: model.RoleOwner}}})

	res, err := resolveInTx(t, s, Request{Buildings: snapshots(b), Period: model.Period{Start: model.Date(2023, 1, 1)}, AsOf: asOf})
	require.NoError(t, err)

	assert.Equal(t, OutcomeExtended, res.Outcome)
	assert.Equal(t, model.DatePtr(2023, 8, 31), res.Facility.Period.End)
	assertDisjoint(t, s.Facilities())
}

func TestResolveCreatesWithoutPredecessor(t *testing.T) {
	s := memory.New()
	s.PutParties(model.Party{ID: 10, Name: "Asunto Oy Koivukuja", Kind: model.PartyHousingAssociation})
	bs := []model.Building{building(1, 0, owned(10, nil), nil), building(2, 50, owned(10, nil), nil)}
	s.PutBuildings(bs...)

	res, err := resolveInTx(t, s, Request{Buildings: snapshots(bs...), Period: model.Period{Start: model.Date(2023, 1, 1)}, AsOf: asOf})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, model.Date(2023, 1, 1), res.Facility.Period.Start)
	assert.Equal(t, model.FacilitySingleProperty, res.Facility.Type)
	assert.Equal(t, "Asunto Oy Koivukuja", res.Facility.Name)
	assert.Empty(t, res.Closed)
}

func TestResolveRejectsLaterConflictingFacility(t *testing.T) {
	s := memory.New()
	b := building(1, 0, owned(10, nil), nil)
	s.PutBuildings(b)
	s.PutFacility(model.Facility{ID: 1, Period: model.Period{Start: model.Date(2023, 5, 1)},
		Buildings: []int64{1}, Parties: []model.FacilityParty{{PartyID: 11, Role: model.RoleOwner}}})

	_, err := resolveInTx(t, s, Request{Buildings: snapshots(b), Period: model.Period{Start: model.Date(2023, 1, 1)}, AsOf: asOf})

	assert.ErrorIs(t, err, ErrConflictingFacility)
	assert.Len(t, s.Facilities(), 1, "nothing is written")
}

func TestResolveEmptyCluster(t *testing.T) {
	_, err := New(nil).Resolve(context.Background(), memory.New().Stores(), Request{Period: model.Period{Start: model.Date(2023, 1, 1)}})
	assert.Error(t, err)
}

func TestBestName(t *testing.T) {
	people := []model.Party{
		{ID: 1, Name: "Virtanen Matti", Kind: model.PartyPerson},
		{ID: 2, Name: "Aaltonen Anna", Kind: model.PartyPerson},
		{ID: 3, Name: "Korhonen Pekka", Kind: model.PartyPerson},
	}

	tests := []struct {
		name        string
		parties     []model.Party
		owners      []int64
		inhabitants []int64
		want        string
	}{
		{
			name: "housing association first",
			parties: append([]model.Party{
				{ID: 4, Name: "Rakennus Oy", Kind: model.PartyCompany},
				{ID: 5, Name: "Asunto Oy Koivu", Kind: model.PartyHousingAssociation},
			}, people...),
			want: "Asunto Oy Koivu",
		},
		{
			name: "company before legal collective",
			parties: append([]model.Party{
				{ID: 6, Name: "Kuolinpesä Virtanen", Kind: model.PartyLegalCollective},
				{ID: 4, Name: "Rakennus Oy", Kind: model.PartyCompany},
			}, people...),
			want: "Rakennus Oy",
		},
		{
			name:        "alphabetically first inhabitant",
			parties:     people,
			owners:      []int64{2},
			inhabitants: []int64{1, 3},
			want:        "Korhonen Pekka",
		},
		{
			name:    "alphabetically first owner",
			parties: people,
			owners:  []int64{1, 2},
			want:    "Aaltonen Anna",
		},
		{
			name: "placeholder",
			want: PlaceholderName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bestName(tt.parties, tt.owners, tt.inhabitants))
		})
	}
}
