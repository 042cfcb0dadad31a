// Package customer binds external customer records (contract holders,
// collection event payers) to existing facilities.
package customer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/names"
	"github.com/kohde-resolver/internal/normalize"
	"github.com/kohde-resolver/internal/store"
)

var (
	// ErrNoCandidates is returned when no facility matches the record's keys.
	ErrNoCandidates = errors.New("no candidate facility")
	// ErrUnresolved is returned when several facilities match and party
	// names do not single one out.
	ErrUnresolved = errors.New("unresolved customer record")
)

// Key names the lookup a match was found by.
type Key string

const (
	KeyBuilding Key = "building"
	KeyTaxID    Key = "tax_id"
	KeyAddress  Key = "address"
	KeyNone     Key = "none"
)

// Matcher resolves customer records to facilities. It never creates
// facilities.
type Matcher struct {
	log *zap.Logger
}

// NewMatcher creates a customer matcher.
func NewMatcher(log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{log: log}
}

// Match returns the facility the customer record belongs to.
func (m *Matcher) Match(ctx context.Context, st store.Stores, c model.Customer) (model.Facility, error) {
	candidates, key, err := m.candidates(ctx, st, c)
	if err != nil {
		return model.Facility{}, err
	}

	switch len(candidates) {
	case 0:
		return model.Facility{}, fmt.Errorf("customer %d by %s: %w", c.ID, key, ErrNoCandidates)
	case 1:
		return candidates[0], nil
	}

	f, ok, err := m.disambiguate(ctx, st, c, candidates)
	if err != nil {
		return model.Facility{}, err
	}
	if !ok {
		return model.Facility{}, fmt.Errorf("customer %d: %d facilities by %s: %w", c.ID, len(candidates), key, ErrUnresolved)
	}
	m.log.Debug("customer disambiguated by party name",
		zap.Int64("customer_id", c.ID),
		zap.Int64("facility_id", f.ID),
		zap.Int("candidates", len(candidates)))
	return f, nil
}

func (m *Matcher) candidates(ctx context.Context, st store.Stores, c model.Customer) ([]model.Facility, Key, error) {
	switch {
	case len(c.BuildingIDs) > 0:
		bs, err := st.Buildings.FindByPermanentIDs(ctx, c.BuildingIDs)
		if err != nil {
			return nil, KeyBuilding, fmt.Errorf("failed to find buildings: %w", err)
		}
		fs, err := m.byBuildings(ctx, st, bs, c.Period)
		return fs, KeyBuilding, err

	case c.TaxID != nil && *c.TaxID != "" && names.IsOrganization(c.Name):
		parties, err := st.Parties.FindByTaxID(ctx, *c.TaxID)
		if err != nil {
			return nil, KeyTaxID, fmt.Errorf("failed to find parties by tax id: %w", err)
		}
		if len(parties) == 0 {
			return nil, KeyTaxID, nil
		}
		ids := make([]int64, 0, len(parties))
		for _, p := range parties {
			ids = append(ids, p.ID)
		}
		fs, err := st.Facilities.FindByOwners(ctx, ids, c.Period)
		if err != nil {
			return nil, KeyTaxID, fmt.Errorf("failed to find facilities by owner: %w", err)
		}
		return fs, KeyTaxID, nil

	case c.Street != "" && c.PostalCode != "":
		street, number := c.Street, c.HouseNumber
		if number == "" {
			street, number = normalize.SplitStreetAddress(street)
		}
		postal := normalize.CanonicalPostalCode(c.PostalCode)
		bs, err := st.Buildings.FindByPostalCode(ctx, postal)
		if err != nil {
			return nil, KeyAddress, fmt.Errorf("failed to find buildings by postal code: %w", err)
		}
		fs, err := m.byBuildings(ctx, st, atAddress(bs, street, number, postal), c.Period)
		return fs, KeyAddress, err
	}
	return nil, KeyNone, nil
}

func (m *Matcher) byBuildings(ctx context.Context, st store.Stores, bs []model.Building, p model.Period) ([]model.Facility, error) {
	if len(bs) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(bs))
	for _, b := range bs {
		ids = append(ids, b.ID)
	}
	fs, err := st.Facilities.FindOverlapping(ctx, ids, p)
	if err != nil {
		return nil, fmt.Errorf("failed to find facilities by building: %w", err)
	}
	return fs, nil
}

// atAddress keeps buildings with an address whose canonical street, house
// number and postal code equal the given ones.
func atAddress(bs []model.Building, street, number, postal string) []model.Building {
	street = normalize.CanonicalStreet(street)
	number = normalize.CanonicalHouseNumber(number)
	var out []model.Building
	for _, b := range bs {
		for _, a := range b.Addresses {
			if normalize.CanonicalPostalCode(a.PostalCode) == postal &&
				normalize.CanonicalStreet(a.StreetName) == street &&
				normalize.CanonicalHouseNumber(a.HouseNumber) == number {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// disambiguate returns the first candidate, by id, associated with a party
// whose name matches the customer name once legal forms are stripped.
func (m *Matcher) disambiguate(ctx context.Context, st store.Stores, c model.Customer, candidates []model.Facility) (model.Facility, bool, error) {
	var ids []int64
	for _, f := range candidates {
		ids = append(ids, f.AllPartyIDs()...)
	}
	parties, err := st.Parties.GetMany(ctx, model.SortedUnique(ids))
	if err != nil {
		return model.Facility{}, false, fmt.Errorf("failed to load parties: %w", err)
	}
	byID := make(map[int64]model.Party, len(parties))
	for _, p := range parties {
		byID[p.ID] = p
	}

	name := names.StripLegalSuffix(c.Name)
	sorted := append([]model.Facility(nil), candidates...)
	model.SortFacilities(sorted)
	for _, f := range sorted {
		for _, id := range f.AllPartyIDs() {
			p, ok := byID[id]
			if ok && names.Match(name, names.StripLegalSuffix(p.Name)) {
				return f, true, nil
			}
		}
	}
	return model.Facility{}, false, nil
}
