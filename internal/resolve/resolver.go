// Package resolve turns finalized building clusters into facility entities:
// it reuses or extends a matching facility, or creates a successor and
// closes the facilities it replaces, moving their dependent records along.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

// ErrConflictingFacility is returned when a facility holding some of the
// cluster's buildings starts on or after the start of the facility that would
// replace it. The unit is skipped.
var ErrConflictingFacility = errors.New("conflicting facility")

// PlaceholderName names a facility without any named party.
const PlaceholderName = "Nimetön kohde"

// Outcome tells what resolution did with a cluster.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeExtended  Outcome = "extended"
	OutcomeUnchanged Outcome = "unchanged"
)

// Request is one finalized cluster to resolve. Buildings are snapshots at
// AsOf and include auxiliary buildings.
type Request struct {
	Buildings []model.BuildingSnapshot
	Period    model.Period
	AsOf      time.Time
	Type      model.FacilityType
}

// BuildingIDs returns the sorted building ids of the request.
func (r Request) BuildingIDs() []int64 {
	ids := make([]int64, 0, len(r.Buildings))
	for _, b := range r.Buildings {
		ids = append(ids, b.ID)
	}
	return model.SortedUnique(ids)
}

// Owners returns the union of current owners over the cluster.
func (r Request) Owners() []int64 {
	var ids []int64
	for _, b := range r.Buildings {
		ids = append(ids, b.OwnerIDs...)
	}
	return model.SortedUnique(ids)
}

// Inhabitants returns the union of current principal inhabitants.
func (r Request) Inhabitants() []int64 {
	var ids []int64
	for _, b := range r.Buildings {
		ids = append(ids, b.InhabitantIDs...)
	}
	return model.SortedUnique(ids)
}

// Result describes the resolved facility and the side effects on others.
type Result struct {
	Facility model.Facility
	Outcome  Outcome
	Closed   []int64
	Migrated int
}

// Resolver applies the facility lifecycle rules. It holds no state between
// calls; every read and write goes through the stores it is given.
type Resolver struct {
	log *zap.Logger
}

// New creates a resolver.
func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log}
}

// Resolve matches the cluster against existing facilities and reuses,
// extends or replaces them. Callers run it inside a transaction; on error
// the stores may hold partial writes that the transaction must discard.
func (r *Resolver) Resolve(ctx context.Context, st store.Stores, req Request) (Result, error) {
	ids := req.BuildingIDs()
	if len(ids) == 0 {
		return Result{}, errors.New("failed to resolve: empty cluster")
	}
	if !req.Period.Valid() {
		return Result{}, fmt.Errorf("failed to resolve: invalid period %s..%s", req.Period.Start.Format(time.DateOnly), req.Period.End.Format(time.DateOnly))
	}
	start := model.Day(req.Period.Start)
	dayBefore := model.DayBefore(start)

	// One query covers the candidates and the predecessor on the day before.
	existing, err := st.Facilities.FindOverlapping(ctx, ids, model.Period{Start: dayBefore, End: req.Period.End})
	if err != nil {
		return Result{}, fmt.Errorf("failed to find facilities: %w", err)
	}

	accepted, outcome, err := r.match(ctx, st, req, ids, existing)
	if err != nil {
		return Result{}, err
	}
	if accepted != nil {
		return r.reuse(ctx, st, req, *accepted, outcome, ids)
	}
	return r.create(ctx, st, req, ids, existing)
}

// match picks an exact match first, then a facility whose buildings are a
// strict subset of the cluster with identical party sets.
func (r *Resolver) match(ctx context.Context, st store.Stores, req Request, ids []int64, existing []model.Facility) (*model.Facility, Outcome, error) {
	owners, inhabitants := req.Owners(), req.Inhabitants()
	parties := model.SortedUnique(append(append([]int64(nil), owners...), inhabitants...))

	var subset []model.Facility
	for _, f := range existing {
		if !f.Period.Overlaps(req.Period) {
			continue
		}
		fParties := model.SortedUnique(append(f.PartyIDs(model.RoleOwner), f.PartyIDs(model.RoleInhabitant)...))
		if !model.Intersects(fParties, parties) {
			continue
		}
		if !model.SameIDs(f.PartyIDs(model.RoleOwner), owners) || !model.SameIDs(f.PartyIDs(model.RoleInhabitant), inhabitants) {
			continue
		}
		if model.SameIDs(f.Buildings, ids) {
			f := f
			return &f, OutcomeUnchanged, nil
		}
		if model.IsSubset(f.Buildings, ids) {
			subset = append(subset, f)
		}
	}

	for _, f := range subset {
		missing := difference(ids, f.Buildings)
		holders, err := st.Facilities.FindOverlapping(ctx, missing, f.Period)
		if err != nil {
			return nil, "", fmt.Errorf("failed to check buildings %v: %w", missing, err)
		}
		if len(holders) > 0 {
			r.log.Debug("subset candidate rejected, buildings held elsewhere",
				zap.Int64("facility_id", f.ID), zap.Int64s("buildings", missing))
			continue
		}
		f := f
		return &f, OutcomeExtended, nil
	}
	return nil, "", nil
}

func (r *Resolver) reuse(ctx context.Context, st store.Stores, req Request, f model.Facility, outcome Outcome, ids []int64) (Result, error) {
	changed := outcome == OutcomeExtended
	if changed {
		f.Buildings = model.SortedUnique(append(f.Buildings, ids...))
	}

	if f.Period.End != nil && (req.Period.End == nil || req.Period.End.After(*f.Period.End)) {
		end, err := r.widenedEnd(ctx, st, f, req.Period.End)
		if err != nil {
			return Result{}, err
		}
		if end == nil || end.After(*f.Period.End) {
			f.Period.End = end
			changed = true
			outcome = OutcomeExtended
		}
	}

	if changed {
		if err := st.Facilities.Update(ctx, f); err != nil {
			return Result{}, fmt.Errorf("failed to update facility %d: %w", f.ID, err)
		}
		r.log.Debug("facility extended", zap.Int64("facility_id", f.ID), zap.Int64s("buildings", f.Buildings))
	}
	return Result{Facility: f, Outcome: outcome}, nil
}

// widenedEnd caps the requested end at the day before the next facility
// holding any of f's buildings.
func (r *Resolver) widenedEnd(ctx context.Context, st store.Stores, f model.Facility, target *time.Time) (*time.Time, error) {
	after := model.Period{Start: model.DayAfter(*f.Period.End), End: target}
	next, err := st.Facilities.FindOverlapping(ctx, f.Buildings, after)
	if err != nil {
		return nil, fmt.Errorf("failed to find successors of facility %d: %w", f.ID, err)
	}
	end := target
	for _, g := range next {
		if g.ID == f.ID {
			continue
		}
		limit := model.DayBefore(g.Period.Start)
		if end == nil || limit.Before(*end) {
			end = &limit
		}
	}
	return end, nil
}

func (r *Resolver) create(ctx context.Context, st store.Stores, req Request, ids []int64, existing []model.Facility) (Result, error) {
	start := model.Day(req.Period.Start)
	dayBefore := model.DayBefore(start)

	predecessor := false
	for _, f := range existing {
		if f.Period.Contains(dayBefore) {
			predecessor = true
			break
		}
	}
	if predecessor {
		if change, ok := latestChange(req.Buildings, dayBefore, req.AsOf); ok {
			if req.Period.End == nil || !change.After(model.Day(*req.Period.End)) {
				start = change
			}
		}
	}
	period := model.Period{Start: start, End: req.Period.End}

	var conflicts []model.Facility
	for _, f := range existing {
		if !f.Period.Overlaps(period) {
			continue
		}
		if !model.Day(f.Period.Start).Before(start) {
			return Result{}, fmt.Errorf("facility %d starts %s, not before %s: %w",
				f.ID, f.Period.Start.Format(time.DateOnly), start.Format(time.DateOnly), ErrConflictingFacility)
		}
		conflicts = append(conflicts, f)
	}

	owners, inhabitants := req.Owners(), req.Inhabitants()
	parties, err := st.Parties.GetMany(ctx, model.SortedUnique(append(append([]int64(nil), owners...), inhabitants...)))
	if err != nil {
		return Result{}, fmt.Errorf("failed to load parties: %w", err)
	}

	typ := req.Type
	if typ == "" {
		typ = model.FacilitySingleProperty
	}
	f := model.Facility{
		Name:      bestName(parties, owners, inhabitants),
		Type:      typ,
		Period:    period,
		Buildings: ids,
	}
	for _, id := range owners {
		f.Parties = append(f.Parties, model.FacilityParty{PartyID: id, Role: model.RoleOwner})
	}
	for _, id := range inhabitants {
		f.Parties = append(f.Parties, model.FacilityParty{PartyID: id, Role: model.RoleInhabitant})
	}
	if err := st.Facilities.Create(ctx, &f); err != nil {
		return Result{}, fmt.Errorf("failed to create facility: %w", err)
	}
	r.log.Debug("facility created",
		zap.Int64("facility_id", f.ID),
		zap.String("name", f.Name),
		zap.Time("start", f.Period.Start),
		zap.Int64s("buildings", f.Buildings))

	closeDate := model.DayBefore(start)
	// Predecessors already ending on closeDate hand over their records
	// without being updated.
	var handover []int64
	for _, e := range existing {
		if e.Period.Contains(closeDate) && !e.Period.Overlaps(period) {
			handover = append(handover, e.ID)
		}
	}

	res := Result{Facility: f, Outcome: OutcomeCreated}
	if len(conflicts) == 0 && len(handover) == 0 {
		return res, nil
	}

	for _, c := range conflicts {
		c.Period.End = &closeDate
		if err := st.Facilities.Update(ctx, c); err != nil {
			return Result{}, fmt.Errorf("failed to close facility %d: %w", c.ID, err)
		}
		res.Closed = append(res.Closed, c.ID)
		r.log.Debug("facility closed", zap.Int64("facility_id", c.ID), zap.Int64("successor_id", f.ID))
	}

	migrated, err := migrate(ctx, st, append(append([]int64(nil), res.Closed...), handover...), f.ID, closeDate)
	if err != nil {
		return Result{}, err
	}
	res.Migrated = migrated
	return res, nil
}

// migrate moves the dependent records of closed facilities that reach past
// closeDate to the successor. Records starting after closeDate are
// reassigned; records straddling it are truncated and continued on the
// successor. A record already continued is never continued again.
func migrate(ctx context.Context, st store.Stores, closed []int64, successor int64, closeDate time.Time) (int, error) {
	records, err := st.Dependents.ListByFacilities(ctx, append(append([]int64(nil), closed...), successor))
	if err != nil {
		return 0, fmt.Errorf("failed to list dependent records: %w", err)
	}
	continued := make(map[int64]struct{})
	for _, d := range records {
		if d.ContinuedFrom != nil {
			continued[*d.ContinuedFrom] = struct{}{}
		}
	}
	closedSet := make(map[int64]struct{}, len(closed))
	for _, id := range closed {
		closedSet[id] = struct{}{}
	}

	migrated := 0
	for _, d := range records {
		if _, ok := closedSet[d.FacilityID]; !ok {
			continue
		}
		if d.Period.End != nil && !model.Day(*d.Period.End).After(closeDate) {
			continue
		}
		if model.Day(d.Period.Start).After(closeDate) {
			d.FacilityID = successor
			if err := st.Dependents.Update(ctx, d); err != nil {
				return migrated, fmt.Errorf("failed to reassign dependent record %d: %w", d.ID, err)
			}
			migrated++
			continue
		}
		if _, ok := continued[d.ID]; !ok {
			from := d.ID
			next := model.DependentRecord{
				FacilityID:    successor,
				Kind:          d.Kind,
				Period:        model.Period{Start: model.DayAfter(closeDate), End: d.Period.End},
				ContinuedFrom: &from,
			}
			if err := st.Dependents.Create(ctx, &next); err != nil {
				return migrated, fmt.Errorf("failed to continue dependent record %d: %w", d.ID, err)
			}
		}
		end := closeDate
		d.Period.End = &end
		if err := st.Dependents.Update(ctx, d); err != nil {
			return migrated, fmt.Errorf("failed to truncate dependent record %d: %w", d.ID, err)
		}
		migrated++
	}
	return migrated, nil
}

func latestChange(buildings []model.BuildingSnapshot, after, until time.Time) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, b := range buildings {
		if d, ok := b.LatestChange(after, until); ok && (!found || d.After(latest)) {
			latest, found = d, true
		}
	}
	return latest, found
}

// bestName prefers a housing association, then a company, then a legal
// collective, then the alphabetically first inhabitant, then the
// alphabetically first owner.
func bestName(parties []model.Party, owners, inhabitants []int64) string {
	byName := append([]model.Party(nil), parties...)
	sort.SliceStable(byName, func(i, j int) bool {
		a, b := strings.ToLower(byName[i].Name), strings.ToLower(byName[j].Name)
		if a != b {
			return a < b
		}
		return byName[i].ID < byName[j].ID
	})

	for _, kind := range []model.PartyKind{model.PartyHousingAssociation, model.PartyCompany, model.PartyLegalCollective} {
		for _, p := range byName {
			if p.Kind == kind && strings.TrimSpace(p.Name) != "" {
				return p.Name
			}
		}
	}
	for _, role := range [][]int64{inhabitants, owners} {
		for _, p := range byName {
			if hasID(role, p.ID) && strings.TrimSpace(p.Name) != "" {
				return p.Name
			}
		}
	}
	return PlaceholderName
}

func hasID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// difference returns the ids of a missing from b.
func difference(a, b []int64) []int64 {
	var out []int64
	for _, id := range a {
		if !hasID(b, id) {
			out = append(out, id)
		}
	}
	return out
}
