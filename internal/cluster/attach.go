package cluster

import (
	"github.com/kohde-resolver/internal/classify"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/proximity"
)

// Attacher folds nearby non-significant buildings (outbuildings, saunas)
// into clusters.
type Attacher struct {
	index      *proximity.Index
	classifier *classify.Classifier
	buildings  map[int64]model.BuildingSnapshot
}

// NewAttacher creates an attacher over the run's full proximity index and
// building snapshots. Neither is modified.
func NewAttacher(index *proximity.Index, classifier *classify.Classifier, buildings map[int64]model.BuildingSnapshot) *Attacher {
	return &Attacher{index: index, classifier: classifier, buildings: buildings}
}

// Attach returns c with qualifying neighbours of its members added to
// Auxiliary. A neighbour qualifies when it is not significant (saunas are
// always considered), is not excluded, and either
//   - is a sauna with no owner or an owner shared with the cluster, or
//   - shares an address with the cluster and has no owner or a shared owner.
//
// Candidates are taken from the neighbours of Members only, so attaching
// twice gives the same result.
func (a *Attacher) Attach(c Cluster, exclude func(int64) bool) Cluster {
	inCluster := make(map[int64]struct{})
	for _, id := range c.BuildingIDs() {
		inCluster[id] = struct{}{}
	}

	var owners, addresses []int64
	for _, id := range c.Members {
		s := a.buildings[id]
		owners = append(owners, s.OwnerIDs...)
		addresses = append(addresses, s.AddressIDs...)
	}
	owners = model.SortedUnique(owners)
	addresses = model.SortedUnique(addresses)

	var candidates []int64
	for _, id := range c.Members {
		candidates = append(candidates, a.index.Neighbors(id)...)
	}

	attached := append([]int64(nil), c.Auxiliary...)
	for _, id := range model.SortedUnique(candidates) {
		if _, ok := inCluster[id]; ok {
			continue
		}
		if exclude != nil && exclude(id) {
			continue
		}
		s, ok := a.buildings[id]
		if !ok {
			continue
		}
		sauna := a.classifier.IsSauna(s)
		if a.classifier.IsSignificant(s) && !sauna {
			continue
		}
		ownerOK := !s.HasOwner() || model.Intersects(s.OwnerIDs, owners)
		if !ownerOK {
			continue
		}
		if sauna || model.Intersects(s.AddressIDs, addresses) {
			attached = append(attached, id)
			inCluster[id] = struct{}{}
		}
	}

	c.Auxiliary = model.SortedUnique(attached)
	return c
}
