// Package memory is an in-process implementation of the store repositories.
// Transactions snapshot the whole state and restore it on failure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/normalize"
	"github.com/kohde-resolver/internal/store"
)

type state struct {
	buildings     map[int64]model.Building
	parties       map[int64]model.Party
	facilities    map[int64]model.Facility
	dependents    map[int64]model.DependentRecord
	customers     map[int64]model.Customer
	runs          []model.ImportRun
	tables        *model.CodeTables
	nextFacility  int64
	nextDependent int64
}

func newState() *state {
	return &state{
		buildings:  make(map[int64]model.Building),
		parties:    make(map[int64]model.Party),
		facilities: make(map[int64]model.Facility),
		dependents: make(map[int64]model.DependentRecord),
		customers:  make(map[int64]model.Customer),
	}
}

// clone copies everything a transaction can change. Buildings, parties and
// code tables are read-only through the repositories.
func (s *state) clone() *state {
	out := *s
	out.facilities = make(map[int64]model.Facility, len(s.facilities))
	for id, f := range s.facilities {
		out.facilities[id] = f.Clone()
	}
	out.dependents = make(map[int64]model.DependentRecord, len(s.dependents))
	for id, r := range s.dependents {
		out.dependents[id] = r
	}
	out.customers = make(map[int64]model.Customer, len(s.customers))
	for id, c := range s.customers {
		out.customers[id] = c
	}
	out.runs = append([]model.ImportRun(nil), s.runs...)
	return &out
}

// Store holds the state. Repositories are not synchronised; RunInTx
// serialises units of work.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Stores returns repositories over the store outside any transaction.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Buildings:  buildingRepo{s},
		Parties:    partyRepo{s},
		Facilities: facilityRepo{s},
		Dependents: dependentRepo{s},
		Customers:  customerRepo{s},
		Runs:       runRepo{s},
		CodeTables: codeTableRepo{s},
	}
}

// RunInTx runs fn and restores the previous state if it fails.
func (s *Store) RunInTx(ctx context.Context, fn func(store.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.st.clone()
	if err := fn(s.Stores()); err != nil {
		s.st = backup
		return err
	}
	return nil
}

// PutBuildings loads buildings, replacing any with the same id.
func (s *Store) PutBuildings(bs ...model.Building) {
	for _, b := range bs {
		s.st.buildings[b.ID] = b
	}
}

// PutParties loads parties, replacing any with the same id.
func (s *Store) PutParties(ps ...model.Party) {
	for _, p := range ps {
		s.st.parties[p.ID] = p
	}
}

// PutFacility stores f with its id as given.
func (s *Store) PutFacility(f model.Facility) {
	s.st.facilities[f.ID] = f.Clone()
	if f.ID > s.st.nextFacility {
		s.st.nextFacility = f.ID
	}
}

// PutDependent stores r with its id as given.
func (s *Store) PutDependent(r model.DependentRecord) {
	s.st.dependents[r.ID] = r
	if r.ID > s.st.nextDependent {
		s.st.nextDependent = r.ID
	}
}

// PutCustomers loads customer records.
func (s *Store) PutCustomers(cs ...model.Customer) {
	for _, c := range cs {
		s.st.customers[c.ID] = c
	}
}

// SetCodeTables replaces the reference classifications.
func (s *Store) SetCodeTables(t *model.CodeTables) {
	s.st.tables = t
}

// Facilities returns every facility ordered by id.
func (s *Store) Facilities() []model.Facility {
	out := make([]model.Facility, 0, len(s.st.facilities))
	for _, f := range s.st.facilities {
		out = append(out, f.Clone())
	}
	model.SortFacilities(out)
	return out
}

// Dependents returns every dependent record ordered by id.
func (s *Store) Dependents() []model.DependentRecord {
	out := make([]model.DependentRecord, 0, len(s.st.dependents))
	for _, r := range s.st.dependents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Customer returns one customer record.
func (s *Store) Customer(id int64) (model.Customer, bool) {
	c, ok := s.st.customers[id]
	return c, ok
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedBuildings(m map[int64]model.Building, keep func(model.Building) bool) []model.Building {
	var out []model.Building
	for _, b := range m {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type buildingRepo struct{ s *Store }

func (r buildingRepo) ListByParcel(_ context.Context, parcelIDs []string) ([]model.Building, error) {
	parcels := make(map[string]struct{}, len(parcelIDs))
	for _, p := range parcelIDs {
		parcels[p] = struct{}{}
	}
	return sortedBuildings(r.s.st.buildings, func(b model.Building) bool {
		if len(parcels) == 0 {
			return true
		}
		_, ok := parcels[b.ParcelID]
		return ok
	}), nil
}

func (r buildingRepo) GetMany(_ context.Context, ids []int64) ([]model.Building, error) {
	set := idSet(ids)
	return sortedBuildings(r.s.st.buildings, func(b model.Building) bool {
		_, ok := set[b.ID]
		return ok
	}), nil
}

func (r buildingRepo) FindByPermanentIDs(_ context.Context, permanentIDs []string) ([]model.Building, error) {
	set := make(map[string]struct{}, len(permanentIDs))
	for _, id := range permanentIDs {
		set[id] = struct{}{}
	}
	return sortedBuildings(r.s.st.buildings, func(b model.Building) bool {
		_, ok := set[b.PermanentID]
		return ok
	}), nil
}

func (r buildingRepo) FindByPostalCode(_ context.Context, postalCode string) ([]model.Building, error) {
	postalCode = normalize.CanonicalPostalCode(postalCode)
	return sortedBuildings(r.s.st.buildings, func(b model.Building) bool {
		for _, a := range b.Addresses {
			if normalize.CanonicalPostalCode(a.PostalCode) == postalCode {
				return true
			}
		}
		return false
	}), nil
}

type partyRepo struct{ s *Store }

func (r partyRepo) GetMany(_ context.Context, ids []int64) ([]model.Party, error) {
	var out []model.Party
	for _, id := range model.SortedUnique(ids) {
		if p, ok := r.s.st.parties[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r partyRepo) FindByTaxID(_ context.Context, taxID string) ([]model.Party, error) {
	var out []model.Party
	for _, p := range r.s.st.parties {
		if p.TaxID != nil && *p.TaxID == taxID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type facilityRepo struct{ s *Store }

func (r facilityRepo) filter(keep func(model.Facility) bool) []model.Facility {
	var out []model.Facility
	for _, f := range r.s.st.facilities {
		if keep(f) {
			out = append(out, f.Clone())
		}
	}
	model.SortFacilities(out)
	return out
}

func (r facilityRepo) Get(_ context.Context, id int64) (model.Facility, error) {
	f, ok := r.s.st.facilities[id]
	if !ok {
		return model.Facility{}, fmt.Errorf("facility %d: %w", id, store.ErrNotFound)
	}
	return f.Clone(), nil
}

func (r facilityRepo) FindOverlapping(_ context.Context, buildingIDs []int64, p model.Period) ([]model.Facility, error) {
	return r.filter(func(f model.Facility) bool {
		return f.Period.Overlaps(p) && model.Intersects(f.Buildings, buildingIDs)
	}), nil
}

func (r facilityRepo) FindByOwners(_ context.Context, partyIDs []int64, p model.Period) ([]model.Facility, error) {
	return r.filter(func(f model.Facility) bool {
		return f.Period.Overlaps(p) && model.Intersects(f.PartyIDs(model.RoleOwner), partyIDs)
	}), nil
}

func (r facilityRepo) ListActive(_ context.Context, d time.Time) ([]model.Facility, error) {
	return r.filter(func(f model.Facility) bool { return f.Period.Contains(d) }), nil
}

func (r facilityRepo) Create(_ context.Context, f *model.Facility) error {
	r.s.st.nextFacility++
	f.ID = r.s.st.nextFacility
	r.s.st.facilities[f.ID] = f.Clone()
	return nil
}

func (r facilityRepo) Update(_ context.Context, f model.Facility) error {
	if _, ok := r.s.st.facilities[f.ID]; !ok {
		return fmt.Errorf("facility %d: %w", f.ID, store.ErrNotFound)
	}
	r.s.st.facilities[f.ID] = f.Clone()
	return nil
}

type dependentRepo struct{ s *Store }

func (r dependentRepo) ListByFacilities(_ context.Context, facilityIDs []int64) ([]model.DependentRecord, error) {
	set := idSet(facilityIDs)
	var out []model.DependentRecord
	for _, d := range r.s.st.dependents {
		if _, ok := set[d.FacilityID]; ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r dependentRepo) Create(_ context.Context, d *model.DependentRecord) error {
	r.s.st.nextDependent++
	d.ID = r.s.st.nextDependent
	r.s.st.dependents[d.ID] = *d
	return nil
}

func (r dependentRepo) Update(_ context.Context, d model.DependentRecord) error {
	if _, ok := r.s.st.dependents[d.ID]; !ok {
		return fmt.Errorf("dependent record %d: %w", d.ID, store.ErrNotFound)
	}
	r.s.st.dependents[d.ID] = d
	return nil
}

type customerRepo struct{ s *Store }

func (r customerRepo) ListUnbound(_ context.Context) ([]model.Customer, error) {
	var out []model.Customer
	for _, c := range r.s.st.customers {
		if c.FacilityID == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r customerRepo) Bind(_ context.Context, customerID, facilityID int64, at time.Time) error {
	c, ok := r.s.st.customers[customerID]
	if !ok {
		return fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
	}
	c.FacilityID = &facilityID
	c.BoundAt = &at
	r.s.st.customers[customerID] = c
	return nil
}

type runRepo struct{ s *Store }

func (r runRepo) Start(_ context.Context, run model.ImportRun) error {
	r.s.st.runs = append(r.s.st.runs, run)
	return nil
}

func (r runRepo) Complete(_ context.Context, run model.ImportRun) error {
	for i := range r.s.st.runs {
		if r.s.st.runs[i].ID == run.ID {
			r.s.st.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("run %s: %w", run.ID, store.ErrNotFound)
}

func (r runRepo) Latest(_ context.Context) (model.ImportRun, error) {
	if len(r.s.st.runs) == 0 {
		return model.ImportRun{}, fmt.Errorf("latest run: %w", store.ErrNotFound)
	}
	return r.s.st.runs[len(r.s.st.runs)-1], nil
}

type codeTableRepo struct{ s *Store }

func (r codeTableRepo) Load(_ context.Context) (*model.CodeTables, error) {
	if r.s.st.tables == nil {
		return model.DefaultCodeTables(), nil
	}
	return r.s.st.tables, nil
}
