package model

import (
	"sort"
	"time"
)

// PartyKind classifies a person or organisation.
type PartyKind string

const (
	PartyPerson             PartyKind = "person"
	PartyCompany            PartyKind = "company"
	PartyHousingAssociation PartyKind = "housing_association"
	PartyLegalCollective    PartyKind = "legal_collective"
)

// Party is a person or an organisation. Parties are shared between
// facilities and are not owned by any of them.
type Party struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Kind       PartyKind `json:"kind"`
	TaxID      *string   `json:"tax_id,omitempty"`
	NationalID *string   `json:"-"`
}

// FacilityType is the kind of facility entity.
type FacilityType string

const (
	FacilitySingleProperty FacilityType = "single_property"
	FacilityAreaCollection FacilityType = "area_collection"
	FacilityPipeCollection FacilityType = "pipe_collection"
	FacilityPseudo         FacilityType = "pseudo"
)

// Role tags a party association on a facility.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleInhabitant Role = "inhabitant"
	RoleContact    Role = "contact"
)

// FacilityParty associates a party with a facility in one role.
type FacilityParty struct {
	PartyID int64 `json:"party_id"`
	Role    Role  `json:"role"`
}

// Facility is the durable aggregate ("kohde") that contracts, collection
// events, decisions and registrations attach to.
type Facility struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      FacilityType    `json:"type"`
	Period    Period          `json:"period"`
	Buildings []int64         `json:"buildings"`
	Parties   []FacilityParty `json:"parties"`
}

// PartyIDs returns the sorted ids of parties holding role.
func (f Facility) PartyIDs(role Role) []int64 {
	var ids []int64
	for _, p := range f.Parties {
		if p.Role == role {
			ids = append(ids, p.PartyID)
		}
	}
	return SortedUnique(ids)
}

// AllPartyIDs returns every associated party id regardless of role.
func (f Facility) AllPartyIDs() []int64 {
	ids := make([]int64, 0, len(f.Parties))
	for _, p := range f.Parties {
		ids = append(ids, p.PartyID)
	}
	return SortedUnique(ids)
}

// Clone returns a deep copy.
func (f Facility) Clone() Facility {
	out := f
	out.Buildings = append([]int64(nil), f.Buildings...)
	out.Parties = append([]FacilityParty(nil), f.Parties...)
	if f.Period.End != nil {
		end := *f.Period.End
		out.Period.End = &end
	}
	return out
}

// SortFacilities orders facilities by id.
func SortFacilities(fs []Facility) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].ID < fs[j].ID })
}

// DependentKind is the kind of record bound to a facility.
type DependentKind string

const (
	DependentContract        DependentKind = "contract"
	DependentCollectionEvent DependentKind = "collection_event"
	DependentDecision        DependentKind = "decision"
	DependentRegistration    DependentKind = "registration"
)

// DependentRecord references exactly one facility for a date range.
// ContinuedFrom links the successor half of a record split at a facility
// close date to the record it continues.
type DependentRecord struct {
	ID            int64         `json:"id"`
	FacilityID    int64         `json:"facility_id"`
	Kind          DependentKind `json:"kind"`
	Period        Period        `json:"period"`
	ContinuedFrom *int64        `json:"continued_from,omitempty"`
}

// Customer is an external transactional customer record (contract holder,
// collection event payer) waiting to be bound to a facility.
type Customer struct {
	ID          int64      `json:"id"`
	BuildingIDs []string   `json:"building_ids,omitempty"`
	TaxID       *string    `json:"tax_id,omitempty"`
	Street      string     `json:"street,omitempty"`
	HouseNumber string     `json:"house_number,omitempty"`
	PostalCode  string     `json:"postal_code,omitempty"`
	Name        string     `json:"name"`
	Period      Period     `json:"period"`
	FacilityID  *int64     `json:"facility_id,omitempty"`
	BoundAt     *time.Time `json:"bound_at,omitempty"`
}
