package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, New(db)
}

func TestListByParcelLoadsRelations(t *testing.T) {
	_, mock, s := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM building b`).
		WithArgs(pq.Array([]string{"P1"})).
		WillReturnRows(sqlmock.NewRows([]string{"building_id", "permanent_id", "parcel_id", "x", "y", "usage_code", "decommissioned_on"}).
			AddRow(1, "100A", "P1", 10.0, 20.0, "011", nil).
			AddRow(2, "100B", "P1", nil, nil, "931", time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)))
	mock.ExpectQuery(`FROM building_owner`).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"building_id", "party_id", "start_date", "end_date"}).
			AddRow(1, 10, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), nil).
			AddRow(2, 10, nil, nil))
	mock.ExpectQuery(`FROM building_inhabitant`).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"building_id", "party_id", "start_date", "end_date"}).
			AddRow(1, 20, nil, time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC)))
	mock.ExpectQuery(`FROM building_address ba`).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"building_id", "address_id", "street_id", "street_name", "house_number", "unit", "postal_code"}).
			AddRow(1, 100, 1, "Kuusitie", "12", "", "00100"))

	bs, err := s.Stores().Buildings.ListByParcel(ctx, []string{"P1"})
	require.NoError(t, err)
	require.Len(t, bs, 2)

	assert.Equal(t, 10.0, bs[0].Location.X())
	assert.Equal(t, []model.Ownership{{PartyID: 10, Start: model.DatePtr(2015, 1, 1)}}, bs[0].Owners)
	assert.Equal(t, []model.Inhabitancy{{PartyID: 20, End: model.DatePtr(2023, 1, 30)}}, bs[0].Inhabitants)
	assert.Equal(t, "Kuusitie", bs[0].Addresses[0].StreetName)

	assert.Nil(t, bs[1].Location)
	assert.Equal(t, model.DatePtr(2022, 5, 1), bs[1].DecommissionedOn)
	assert.Empty(t, bs[1].Addresses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverlappingOpenPeriod(t *testing.T) {
	_, mock, s := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM facility f`).
		WithArgs(model.Date(2023, 1, 1), nil, pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"facility_id", "name", "facility_type", "start_date", "end_date"}).
			AddRow(5, "Koivu", "single_property", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), nil))
	mock.ExpectQuery(`FROM facility_building`).
		WithArgs(pq.Array([]int64{5})).
		WillReturnRows(sqlmock.NewRows([]string{"facility_id", "building_id"}).AddRow(5, 1).AddRow(5, 3))
	mock.ExpectQuery(`FROM facility_party`).
		WithArgs(pq.Array([]int64{5})).
		WillReturnRows(sqlmock.NewRows([]string{"facility_id", "party_id", "role"}).AddRow(5, 10, "owner"))

	fs, err := s.Stores().Facilities.FindOverlapping(ctx, []int64{1, 2}, model.Period{Start: model.Date(2023, 1, 1)})
	require.NoError(t, err)
	require.Len(t, fs, 1)

	assert.Equal(t, model.FacilitySingleProperty, fs[0].Type)
	assert.Nil(t, fs[0].Period.End)
	assert.Equal(t, []int64{1, 3}, fs[0].Buildings)
	assert.Equal(t, []int64{10}, fs[0].PartyIDs(model.RoleOwner))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverlappingWithoutBuildingsSkipsQuery(t *testing.T) {
	_, mock, s := setupMockDB(t)

	fs, err := s.Stores().Facilities.FindOverlapping(context.Background(), nil, model.Period{Start: model.Date(2023, 1, 1)})

	require.NoError(t, err)
	assert.Empty(t, fs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPostalCodeCanonicalisesBothSides(t *testing.T) {
	_, mock, s := setupMockDB(t)

	mock.ExpectQuery(`btrim\(a\.postal_code\)\) = \$1`).
		WithArgs("00100").
		WillReturnRows(sqlmock.NewRows([]string{"building_id", "permanent_id", "parcel_id", "x", "y", "usage_code", "decommissioned_on"}))

	bs, err := s.Stores().Buildings.FindByPostalCode(context.Background(), " 00100 Helsinki")
	require.NoError(t, err)

	assert.Empty(t, bs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFacility(t *testing.T) {
	_, mock, s := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO facility`).
		WithArgs("Koivu", "single_property", model.Date(2023, 1, 31), nil).
		WillReturnRows(sqlmock.NewRows([]string{"facility_id"}).AddRow(42))
	mock.ExpectExec(`INSERT INTO facility_building`).
		WithArgs(int64(42), pq.Array([]int64{1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO facility_party`).
		WithArgs(int64(42), pq.Array([]int64{10, 21}), pq.Array([]string{"owner", "inhabitant"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	f := model.Facility{
		Name:      "Koivu",
		Type:      model.FacilitySingleProperty,
		Period:    model.Period{Start: model.Date(2023, 1, 31)},
		Buildings: []int64{1, 2},
		Parties: []model.FacilityParty{
			{PartyID: 10, Role: model.RoleOwner},
			{PartyID: 21, Role: model.RoleInhabitant},
		},
	}
	require.NoError(t, s.Stores().Facilities.Create(context.Background(), &f))

	assert.Equal(t, int64(42), f.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingFacility(t *testing.T) {
	_, mock, s := setupMockDB(t)

	mock.ExpectExec(`UPDATE facility SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Stores().Facilities.Update(context.Background(), model.Facility{ID: 9, Period: model.Period{Start: model.Date(2023, 1, 1)}})

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		_, mock, s := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE dependent_record SET`).
			WithArgs(int64(1), int64(2), model.Date(2023, 1, 31), nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.RunInTx(context.Background(), func(st store.Stores) error {
			return st.Dependents.Update(context.Background(), model.DependentRecord{
				ID: 1, FacilityID: 2, Period: model.Period{Start: model.Date(2023, 1, 31)},
			})
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		_, mock, s := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()
		boom := errors.New("boom")

		err := s.RunInTx(context.Background(), func(store.Stores) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateContinuation(t *testing.T) {
	_, mock, s := setupMockDB(t)
	from := int64(7)

	mock.ExpectQuery(`INSERT INTO dependent_record`).
		WithArgs(int64(2), "contract", model.Date(2023, 1, 31), model.Date(2023, 12, 31), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}).AddRow(8))

	d := model.DependentRecord{
		FacilityID:    2,
		Kind:          model.DependentContract,
		Period:        model.Period{Start: model.Date(2023, 1, 31), End: model.DatePtr(2023, 12, 31)},
		ContinuedFrom: &from,
	}
	require.NoError(t, s.Stores().Dependents.Create(context.Background(), &d))

	assert.Equal(t, int64(8), d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRunNotFound(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`FROM import_run`).WillReturnError(sql.ErrNoRows)

	_, err := s.Stores().Runs.Latest(context.Background())

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLatestRun(t *testing.T) {
	_, mock, s := setupMockDB(t)
	started := time.Date(2023, 2, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM import_run`).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "kind", "started_at", "completed_at", "status", "as_of",
			"start_date", "end_date", "parcels", "dry_run", "summary", "error"}).
			AddRow("6f1c", "resolve", started, started, "completed", started, started, nil, "{P1,P2}", false,
				[]byte(`{"clusters":3,"created":2,"skipped":{"implausible_cluster":1}}`), ""))

	run, err := s.Stores().Runs.Latest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, []string{"P1", "P2"}, run.Parcels)
	assert.Equal(t, 2, run.Summary.Created)
	assert.Equal(t, map[string]int{"implausible_cluster": 1}, run.Summary.Skipped)
	assert.Equal(t, model.Date(2023, 2, 15), run.AsOf)
}

func TestBindCustomerNotFound(t *testing.T) {
	_, mock, s := setupMockDB(t)
	at := time.Date(2023, 2, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE customer SET`).
		WithArgs(int64(3), int64(5), at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Stores().Customers.Bind(context.Background(), 3, 5, at)

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCodeTablesFallsBackToDefaults(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`FROM usage_class`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "significant", "sauna"}))

	tables, err := s.Stores().CodeTables.Load(context.Background())
	require.NoError(t, err)

	u, ok := tables.Usage("931")
	require.True(t, ok)
	assert.True(t, u.Sauna)
	assert.NoError(t, mock.ExpectationsWereMet())
}
