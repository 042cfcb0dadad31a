package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Building is one structure from an extract. It is immutable per snapshot and
// replaced wholesale by the next import.
type Building struct {
	ID               int64         `json:"id"`
	PermanentID      string        `json:"permanent_id"`
	ParcelID         string        `json:"parcel_id"`
	Location         *orb.Point    `json:"location,omitempty"`
	UsageCode        string        `json:"usage_code"`
	DecommissionedOn *time.Time    `json:"decommissioned_on,omitempty"`
	Owners           []Ownership   `json:"owners,omitempty"`
	Inhabitants      []Inhabitancy `json:"inhabitants,omitempty"`
	Addresses        []Address     `json:"addresses,omitempty"`
}

// Ownership is a time-bounded relation between a building and a party.
type Ownership struct {
	PartyID int64      `json:"party_id"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

// Inhabitancy is a time-bounded principal-inhabitant relation.
type Inhabitancy struct {
	PartyID int64      `json:"party_id"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

// Address is shared by any number of buildings.
type Address struct {
	ID          int64  `json:"id"`
	StreetID    int64  `json:"street_id"`
	StreetName  string `json:"street_name"`
	HouseNumber string `json:"house_number"`
	Unit        string `json:"unit,omitempty"`
	PostalCode  string `json:"postal_code"`
}

// Key identifies the address by street, number, unit and postal code.
func (a Address) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s", a.StreetID, a.HouseNumber, a.Unit, a.PostalCode)
}

// Decommissioned reports whether the building was out of use on day d.
func (b Building) Decommissioned(d time.Time) bool {
	return b.DecommissionedOn != nil && !Day(*b.DecommissionedOn).After(Day(d))
}

// BuildingSnapshot is a building resolved to one reference date: the owner,
// inhabitant and address ids current on that date, each sorted ascending.
type BuildingSnapshot struct {
	Building
	OwnerIDs      []int64 `json:"owner_ids"`
	InhabitantIDs []int64 `json:"inhabitant_ids"`
	AddressIDs    []int64 `json:"address_ids"`
}

// SnapshotAt resolves the building's relations on day d.
func (b Building) SnapshotAt(d time.Time) BuildingSnapshot {
	var owners, inhabitants, addresses []int64
	for _, o := range b.Owners {
		if covers(o.Start, o.End, d) {
			owners = append(owners, o.PartyID)
		}
	}
	for _, i := range b.Inhabitants {
		if covers(i.Start, i.End, d) {
			inhabitants = append(inhabitants, i.PartyID)
		}
	}
	for _, a := range b.Addresses {
		addresses = append(addresses, a.ID)
	}
	return BuildingSnapshot{
		Building:      b,
		OwnerIDs:      SortedUnique(owners),
		InhabitantIDs: SortedUnique(inhabitants),
		AddressIDs:    SortedUnique(addresses),
	}
}

// HasOwner reports whether any owner is current in the snapshot.
func (s BuildingSnapshot) HasOwner() bool {
	return len(s.OwnerIDs) > 0
}

// LatestChange returns the most recent ownership or inhabitancy change in
// the half-open window (after, until]. A relation starting on day d changes
// on d; a relation ending on day d changes on the following day.
func (b Building) LatestChange(after, until time.Time) (time.Time, bool) {
	after, until = Day(after), Day(until)
	var latest time.Time
	found := false
	consider := func(d time.Time) {
		d = Day(d)
		if !d.After(after) || d.After(until) {
			return
		}
		if !found || d.After(latest) {
			latest, found = d, true
		}
	}
	for _, o := range b.Owners {
		if o.Start != nil {
			consider(*o.Start)
		}
		if o.End != nil {
			consider(DayAfter(*o.End))
		}
	}
	for _, i := range b.Inhabitants {
		if i.Start != nil {
			consider(*i.Start)
		}
		if i.End != nil {
			consider(DayAfter(*i.End))
		}
	}
	return latest, found
}

// SortedUnique returns the distinct ids in ascending order.
func SortedUnique(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SameIDs reports whether two id lists hold the same set.
func SameIDs(a, b []int64) bool {
	a, b = SortedUnique(a), SortedUnique(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether two id lists share at least one id.
func Intersects(a, b []int64) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[int64]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// IsSubset reports whether every id of a is in b.
func IsSubset(a, b []int64) bool {
	set := make(map[int64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
