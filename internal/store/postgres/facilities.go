package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

const facilityColumns = `f.facility_id, f.name, f.facility_type, f.start_date, f.end_date`

// overlaps is the period overlap predicate on facility f for ($1 start, $2 end).
const overlaps = `f.start_date <= COALESCE($2::date, 'infinity'::date) AND (f.end_date IS NULL OR f.end_date >= $1::date)`

type facilityRepo struct {
	q querier
}

func (r *facilityRepo) Get(ctx context.Context, id int64) (model.Facility, error) {
	fs, err := r.query(ctx, `SELECT `+facilityColumns+` FROM facility f WHERE f.facility_id = $1`, id)
	if err != nil {
		return model.Facility{}, err
	}
	if len(fs) == 0 {
		return model.Facility{}, fmt.Errorf("facility %d: %w", id, store.ErrNotFound)
	}
	return fs[0], nil
}

func (r *facilityRepo) FindOverlapping(ctx context.Context, buildingIDs []int64, p model.Period) ([]model.Facility, error) {
	if len(buildingIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+facilityColumns+` FROM facility f
		WHERE `+overlaps+`
		AND EXISTS (
			SELECT 1 FROM facility_building fb
			WHERE fb.facility_id = f.facility_id AND fb.building_id = ANY($3)
		)
		ORDER BY f.facility_id`, nullDate(&p.Start), nullDate(p.End), pq.Array(buildingIDs))
}

func (r *facilityRepo) FindByOwners(ctx context.Context, partyIDs []int64, p model.Period) ([]model.Facility, error) {
	if len(partyIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+facilityColumns+` FROM facility f
		WHERE `+overlaps+`
		AND EXISTS (
			SELECT 1 FROM facility_party fp
			WHERE fp.facility_id = f.facility_id AND fp.role = 'owner' AND fp.party_id = ANY($3)
		)
		ORDER BY f.facility_id`, nullDate(&p.Start), nullDate(p.End), pq.Array(partyIDs))
}

func (r *facilityRepo) ListActive(ctx context.Context, d time.Time) ([]model.Facility, error) {
	return r.query(ctx, `SELECT `+facilityColumns+` FROM facility f
		WHERE f.start_date <= $1::date AND (f.end_date IS NULL OR f.end_date >= $1::date)
		ORDER BY f.facility_id`, model.Day(d))
}

func (r *facilityRepo) Create(ctx context.Context, f *model.Facility) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO facility (name, facility_type, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING facility_id
	`, f.Name, string(f.Type), model.Day(f.Period.Start), nullDate(f.Period.End)).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to insert facility: %w", err)
	}
	return r.writeMembers(ctx, *f)
}

func (r *facilityRepo) Update(ctx context.Context, f model.Facility) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE facility SET name = $2, facility_type = $3, start_date = $4, end_date = $5
		WHERE facility_id = $1
	`, f.ID, f.Name, string(f.Type), model.Day(f.Period.Start), nullDate(f.Period.End))
	if err != nil {
		return fmt.Errorf("failed to update facility %d: %w", f.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("facility %d: %w", f.ID, store.ErrNotFound)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM facility_building WHERE facility_id = $1`, f.ID); err != nil {
		return fmt.Errorf("failed to clear buildings of facility %d: %w", f.ID, err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM facility_party WHERE facility_id = $1`, f.ID); err != nil {
		return fmt.Errorf("failed to clear parties of facility %d: %w", f.ID, err)
	}
	return r.writeMembers(ctx, f)
}

func (r *facilityRepo) writeMembers(ctx context.Context, f model.Facility) error {
	if len(f.Buildings) > 0 {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO facility_building (facility_id, building_id)
			SELECT $1::bigint, unnest($2::bigint[])
		`, f.ID, pq.Array(f.Buildings))
		if err != nil {
			return fmt.Errorf("failed to insert buildings of facility %d: %w", f.ID, err)
		}
	}
	if len(f.Parties) > 0 {
		ids := make([]int64, len(f.Parties))
		roles := make([]string, len(f.Parties))
		for i, p := range f.Parties {
			ids[i], roles[i] = p.PartyID, string(p.Role)
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO facility_party (facility_id, party_id, role)
			SELECT $1::bigint, * FROM unnest($2::bigint[], $3::text[])
		`, f.ID, pq.Array(ids), pq.Array(roles))
		if err != nil {
			return fmt.Errorf("failed to insert parties of facility %d: %w", f.ID, err)
		}
	}
	return nil
}

// query loads facilities and then their buildings and parties in one query
// each.
func (r *facilityRepo) query(ctx context.Context, query string, args ...any) ([]model.Facility, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		var f model.Facility
		var typ string
		var end sql.NullTime
		if err := rows.Scan(&f.ID, &f.Name, &typ, &f.Period.Start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		f.Type = model.FacilityType(typ)
		f.Period.Start = model.Day(f.Period.Start)
		f.Period.End = datePtr(end)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read facilities: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := r.loadMembers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *facilityRepo) loadMembers(ctx context.Context, fs []model.Facility) error {
	ids := make([]int64, len(fs))
	pos := make(map[int64]int, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
		pos[f.ID] = i
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT facility_id, building_id FROM facility_building
		WHERE facility_id = ANY($1)
		ORDER BY facility_id, building_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query facility buildings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var facilityID, buildingID int64
		if err := rows.Scan(&facilityID, &buildingID); err != nil {
			return fmt.Errorf("failed to scan facility building: %w", err)
		}
		i := pos[facilityID]
		fs[i].Buildings = append(fs[i].Buildings, buildingID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read facility buildings: %w", err)
	}

	partyRows, err := r.q.QueryContext(ctx, `
		SELECT facility_id, party_id, role FROM facility_party
		WHERE facility_id = ANY($1)
		ORDER BY facility_id, role, party_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query facility parties: %w", err)
	}
	defer partyRows.Close()
	for partyRows.Next() {
		var facilityID int64
		var p model.FacilityParty
		var role string
		if err := partyRows.Scan(&facilityID, &p.PartyID, &role); err != nil {
			return fmt.Errorf("failed to scan facility party: %w", err)
		}
		p.Role = model.Role(role)
		i := pos[facilityID]
		fs[i].Parties = append(fs[i].Parties, p)
	}
	if err := partyRows.Err(); err != nil {
		return fmt.Errorf("failed to read facility parties: %w", err)
	}
	return nil
}
