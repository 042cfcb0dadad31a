// Package store defines the repositories the resolution engine reads and
// writes through, and the transactional boundary that encloses one unit of
// work.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kohde-resolver/internal/model"
)

// ErrNotFound is returned when a single record lookup finds nothing.
var ErrNotFound = errors.New("not found")

// BuildingRepository queries the current building extract.
type BuildingRepository interface {
	// ListByParcel returns the buildings of the given parcels, or every
	// building when parcelIDs is empty. Results are ordered by id.
	ListByParcel(ctx context.Context, parcelIDs []string) ([]model.Building, error)
	GetMany(ctx context.Context, ids []int64) ([]model.Building, error)
	FindByPermanentIDs(ctx context.Context, permanentIDs []string) ([]model.Building, error)
	// FindByPostalCode returns buildings with at least one address in the
	// postal code, comparing stored and requested codes in canonical form
	// (see normalize.CanonicalPostalCode). Street matching is left to the
	// caller.
	FindByPostalCode(ctx context.Context, postalCode string) ([]model.Building, error)
}

// PartyRepository queries persons and organisations.
type PartyRepository interface {
	GetMany(ctx context.Context, ids []int64) ([]model.Party, error)
	FindByTaxID(ctx context.Context, taxID string) ([]model.Party, error)
}

// FacilityRepository reads and writes facility entities with their
// building memberships and party associations. Every list is ordered by id.
type FacilityRepository interface {
	Get(ctx context.Context, id int64) (model.Facility, error)
	// FindOverlapping returns facilities whose period overlaps p and which
	// reference at least one of the buildings.
	FindOverlapping(ctx context.Context, buildingIDs []int64, p model.Period) ([]model.Facility, error)
	// FindByOwners returns facilities whose period overlaps p and which have
	// one of the parties as owner.
	FindByOwners(ctx context.Context, partyIDs []int64, p model.Period) ([]model.Facility, error)
	// ListActive returns facilities whose period contains day d.
	ListActive(ctx context.Context, d time.Time) ([]model.Facility, error)
	// Create stores f and assigns its id.
	Create(ctx context.Context, f *model.Facility) error
	// Update replaces name, period, buildings and parties of an existing facility.
	Update(ctx context.Context, f model.Facility) error
}

// DependentRepository manages records that reference a facility.
type DependentRepository interface {
	ListByFacilities(ctx context.Context, facilityIDs []int64) ([]model.DependentRecord, error)
	Create(ctx context.Context, r *model.DependentRecord) error
	// Update rewrites the owning facility and period of a record in place.
	Update(ctx context.Context, r model.DependentRecord) error
}

// CustomerRepository holds external customer records awaiting binding.
type CustomerRepository interface {
	ListUnbound(ctx context.Context) ([]model.Customer, error)
	Bind(ctx context.Context, customerID, facilityID int64, at time.Time) error
}

// RunRepository records import runs.
type RunRepository interface {
	Start(ctx context.Context, run model.ImportRun) error
	Complete(ctx context.Context, run model.ImportRun) error
	Latest(ctx context.Context) (model.ImportRun, error)
}

// CodeTableRepository loads the reference classifications.
type CodeTableRepository interface {
	Load(ctx context.Context) (*model.CodeTables, error)
}

// Stores bundles the repositories bound to one connection or transaction.
type Stores struct {
	Buildings  BuildingRepository
	Parties    PartyRepository
	Facilities FacilityRepository
	Dependents DependentRepository
	Customers  CustomerRepository
	Runs       RunRepository
	CodeTables CodeTableRepository
}

// Transactor runs fn against stores bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(Stores) error) error
}

// Backend is a store that can hand out repositories outside a transaction
// as well as run units of work.
type Backend interface {
	Transactor
	Stores() Stores
}
