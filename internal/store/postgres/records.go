package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

type partyRepo struct {
	q querier
}

func (r *partyRepo) GetMany(ctx context.Context, ids []int64) ([]model.Party, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT party_id, name, kind, tax_id, national_id FROM party
		WHERE party_id = ANY($1) ORDER BY party_id`, pq.Array(ids))
}

func (r *partyRepo) FindByTaxID(ctx context.Context, taxID string) ([]model.Party, error) {
	return r.query(ctx, `SELECT party_id, name, kind, tax_id, national_id FROM party
		WHERE tax_id = $1 ORDER BY party_id`, taxID)
}

func (r *partyRepo) query(ctx context.Context, query string, args ...any) ([]model.Party, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var out []model.Party
	for rows.Next() {
		var p model.Party
		var kind string
		var taxID, nationalID sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &kind, &taxID, &nationalID); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.Kind = model.PartyKind(kind)
		p.TaxID, p.NationalID = stringPtr(taxID), stringPtr(nationalID)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read parties: %w", err)
	}
	return out, nil
}

type dependentRepo struct {
	q querier
}

func (r *dependentRepo) ListByFacilities(ctx context.Context, facilityIDs []int64) ([]model.DependentRecord, error) {
	if len(facilityIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT record_id, facility_id, kind, start_date, end_date, continued_from
		FROM dependent_record
		WHERE facility_id = ANY($1)
		ORDER BY record_id
	`, pq.Array(facilityIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query dependent records: %w", err)
	}
	defer rows.Close()

	var out []model.DependentRecord
	for rows.Next() {
		var d model.DependentRecord
		var kind string
		var end sql.NullTime
		var from sql.NullInt64
		if err := rows.Scan(&d.ID, &d.FacilityID, &kind, &d.Period.Start, &end, &from); err != nil {
			return nil, fmt.Errorf("failed to scan dependent record: %w", err)
		}
		d.Kind = model.DependentKind(kind)
		d.Period.Start = model.Day(d.Period.Start)
		d.Period.End = datePtr(end)
		if from.Valid {
			v := from.Int64
			d.ContinuedFrom = &v
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dependent records: %w", err)
	}
	return out, nil
}

func (r *dependentRepo) Create(ctx context.Context, d *model.DependentRecord) error {
	var from sql.NullInt64
	if d.ContinuedFrom != nil {
		from = sql.NullInt64{Int64: *d.ContinuedFrom, Valid: true}
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO dependent_record (facility_id, kind, start_date, end_date, continued_from)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING record_id
	`, d.FacilityID, string(d.Kind), model.Day(d.Period.Start), nullDate(d.Period.End), from).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to insert dependent record: %w", err)
	}
	return nil
}

func (r *dependentRepo) Update(ctx context.Context, d model.DependentRecord) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE dependent_record SET facility_id = $2, start_date = $3, end_date = $4
		WHERE record_id = $1
	`, d.ID, d.FacilityID, model.Day(d.Period.Start), nullDate(d.Period.End))
	if err != nil {
		return fmt.Errorf("failed to update dependent record %d: %w", d.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dependent record %d: %w", d.ID, store.ErrNotFound)
	}
	return nil
}

type customerRepo struct {
	q querier
}

func (r *customerRepo) ListUnbound(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT customer_id, building_ids, tax_id, street, house_number, postal_code, name, start_date, end_date
		FROM customer
		WHERE facility_id IS NULL
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var out []model.Customer
	for rows.Next() {
		var c model.Customer
		var taxID sql.NullString
		var end sql.NullTime
		if err := rows.Scan(&c.ID, pq.Array(&c.BuildingIDs), &taxID, &c.Street, &c.HouseNumber,
			&c.PostalCode, &c.Name, &c.Period.Start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.TaxID = stringPtr(taxID)
		c.Period.Start = model.Day(c.Period.Start)
		c.Period.End = datePtr(end)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}
	return out, nil
}

func (r *customerRepo) Bind(ctx context.Context, customerID, facilityID int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE customer SET facility_id = $2, bound_at = $3 WHERE customer_id = $1
	`, customerID, facilityID, at)
	if err != nil {
		return fmt.Errorf("failed to bind customer %d: %w", customerID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
	}
	return nil
}

type runRepo struct {
	q querier
}

func (r *runRepo) Start(ctx context.Context, run model.ImportRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO import_run (run_id, kind, started_at, status, as_of, start_date, end_date, parcels, dry_run, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, run.ID, run.Kind, run.StartedAt, string(run.Status), model.Day(run.AsOf),
		periodStart(run.Period), nullDate(run.Period.End), pq.Array(run.Parcels), run.DryRun, string(summary))
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

func (r *runRepo) Complete(ctx context.Context, run model.ImportRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE import_run SET completed_at = $2, status = $3, summary = $4, error = $5
		WHERE run_id = $1
	`, run.ID, run.CompletedAt, string(run.Status), string(summary), run.Error)
	if err != nil {
		return fmt.Errorf("failed to complete import run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, store.ErrNotFound)
	}
	return nil
}

func (r *runRepo) Latest(ctx context.Context) (model.ImportRun, error) {
	var run model.ImportRun
	var status string
	var completed, start, end sql.NullTime
	var summary []byte
	err := r.q.QueryRowContext(ctx, `
		SELECT run_id, kind, started_at, completed_at, status, as_of, start_date, end_date, parcels, dry_run, summary, error
		FROM import_run
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Kind, &run.StartedAt, &completed, &status, &run.AsOf, &start, &end,
		pq.Array(&run.Parcels), &run.DryRun, &summary, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ImportRun{}, fmt.Errorf("latest run: %w", store.ErrNotFound)
	}
	if err != nil {
		return model.ImportRun{}, fmt.Errorf("failed to query latest run: %w", err)
	}
	run.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	run.AsOf = model.Day(run.AsOf)
	if start.Valid {
		run.Period.Start = model.Day(start.Time)
	}
	run.Period.End = datePtr(end)
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return model.ImportRun{}, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return run, nil
}

// periodStart stores a zero start (customer runs) as NULL.
func periodStart(p model.Period) sql.NullTime {
	if p.Start.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: model.Day(p.Start), Valid: true}
}

type codeTableRepo struct {
	q querier
}

// Load reads the usage classification, falling back to the built-in
// defaults when the table is empty.
func (r *codeTableRepo) Load(ctx context.Context) (*model.CodeTables, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT code, name, significant, sauna FROM usage_class ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage classes: %w", err)
	}
	defer rows.Close()

	var classes []model.UsageClass
	for rows.Next() {
		var c model.UsageClass
		if err := rows.Scan(&c.Code, &c.Name, &c.Significant, &c.Sauna); err != nil {
			return nil, fmt.Errorf("failed to scan usage class: %w", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage classes: %w", err)
	}
	if len(classes) == 0 {
		return model.DefaultCodeTables(), nil
	}
	return model.NewCodeTables(classes), nil
}
