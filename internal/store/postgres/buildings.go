package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/normalize"
)

const buildingColumns = `b.building_id, b.permanent_id, b.parcel_id, b.x, b.y, b.usage_code, b.decommissioned_on`

type buildingRepo struct {
	q querier
}

func (r *buildingRepo) ListByParcel(ctx context.Context, parcelIDs []string) ([]model.Building, error) {
	if len(parcelIDs) == 0 {
		return r.query(ctx, `SELECT `+buildingColumns+` FROM building b ORDER BY b.building_id`)
	}
	return r.query(ctx, `SELECT `+buildingColumns+` FROM building b
		WHERE b.parcel_id = ANY($1) ORDER BY b.building_id`, pq.Array(parcelIDs))
}

func (r *buildingRepo) GetMany(ctx context.Context, ids []int64) ([]model.Building, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+buildingColumns+` FROM building b
		WHERE b.building_id = ANY($1) ORDER BY b.building_id`, pq.Array(ids))
}

func (r *buildingRepo) FindByPermanentIDs(ctx context.Context, permanentIDs []string) ([]model.Building, error) {
	if len(permanentIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+buildingColumns+` FROM building b
		WHERE b.permanent_id = ANY($1) ORDER BY b.building_id`, pq.Array(permanentIDs))
}

// canonicalPostalCode mirrors normalize.CanonicalPostalCode on address a.
const canonicalPostalCode = `COALESCE(substring(a.postal_code from '\y(\d{5})\y'), btrim(a.postal_code))`

func (r *buildingRepo) FindByPostalCode(ctx context.Context, postalCode string) ([]model.Building, error) {
	return r.query(ctx, `SELECT `+buildingColumns+` FROM building b
		WHERE b.building_id IN (
			SELECT ba.building_id FROM building_address ba
			JOIN address a ON a.address_id = ba.address_id
			WHERE `+canonicalPostalCode+` = $1
		) ORDER BY b.building_id`, normalize.CanonicalPostalCode(postalCode))
}

// query loads buildings and then their relations with one query per
// relation table.
func (r *buildingRepo) query(ctx context.Context, query string, args ...any) ([]model.Building, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buildings: %w", err)
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		var b model.Building
		var x, y sql.NullFloat64
		var decommissioned sql.NullTime
		if err := rows.Scan(&b.ID, &b.PermanentID, &b.ParcelID, &x, &y, &b.UsageCode, &decommissioned); err != nil {
			return nil, fmt.Errorf("failed to scan building: %w", err)
		}
		if x.Valid && y.Valid {
			b.Location = &orb.Point{x.Float64, y.Float64}
		}
		b.DecommissionedOn = datePtr(decommissioned)
		buildings = append(buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read buildings: %w", err)
	}
	if len(buildings) == 0 {
		return nil, nil
	}
	if err := r.loadRelations(ctx, buildings); err != nil {
		return nil, err
	}
	return buildings, nil
}

func (r *buildingRepo) loadRelations(ctx context.Context, buildings []model.Building) error {
	ids := make([]int64, len(buildings))
	pos := make(map[int64]int, len(buildings))
	for i, b := range buildings {
		ids[i] = b.ID
		pos[b.ID] = i
	}

	owners, err := r.relations(ctx, "building_owner", ids)
	if err != nil {
		return err
	}
	for _, rel := range owners {
		i := pos[rel.buildingID]
		buildings[i].Owners = append(buildings[i].Owners, model.Ownership{PartyID: rel.partyID, Start: rel.start, End: rel.end})
	}

	inhabitants, err := r.relations(ctx, "building_inhabitant", ids)
	if err != nil {
		return err
	}
	for _, rel := range inhabitants {
		i := pos[rel.buildingID]
		buildings[i].Inhabitants = append(buildings[i].Inhabitants, model.Inhabitancy{PartyID: rel.partyID, Start: rel.start, End: rel.end})
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT ba.building_id, a.address_id, a.street_id, a.street_name, a.house_number, a.unit, a.postal_code
		FROM building_address ba
		JOIN address a ON a.address_id = ba.address_id
		WHERE ba.building_id = ANY($1)
		ORDER BY ba.building_id, a.address_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var buildingID int64
		var a model.Address
		if err := rows.Scan(&buildingID, &a.ID, &a.StreetID, &a.StreetName, &a.HouseNumber, &a.Unit, &a.PostalCode); err != nil {
			return fmt.Errorf("failed to scan address: %w", err)
		}
		i := pos[buildingID]
		buildings[i].Addresses = append(buildings[i].Addresses, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read addresses: %w", err)
	}
	return nil
}

type relation struct {
	buildingID int64
	partyID    int64
	start, end *time.Time
}

// relations reads a time-bounded building/party relation table. table is
// always a constant from this package.
func (r *buildingRepo) relations(ctx context.Context, table string, ids []int64) ([]relation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT building_id, party_id, start_date, end_date FROM `+table+`
		WHERE building_id = ANY($1)
		ORDER BY building_id, party_id, start_date NULLS FIRST
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []relation
	for rows.Next() {
		var rel relation
		var start, end sql.NullTime
		if err := rows.Scan(&rel.buildingID, &rel.partyID, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		rel.start, rel.end = datePtr(start), datePtr(end)
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return out, nil
}
