// Package pipeline runs imports: it selects the buildings that need a
// facility, clusters them per parcel, attaches auxiliary buildings, checks
// plausibility and resolves every cluster in its own transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/audit"
	"github.com/kohde-resolver/internal/cluster"
	"github.com/kohde-resolver/internal/customer"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/proximity"
	"github.com/kohde-resolver/internal/resolve"
	"github.com/kohde-resolver/internal/store"
)

// errDryRun rolls back a unit that otherwise succeeded.
var errDryRun = errors.New("dry run")

// Options scope one resolution run.
type Options struct {
	Period  model.Period
	AsOf    time.Time
	Parcels []string
	// Seed lists buildings that must end up in one cluster.
	Seed          []int64
	DryRun        bool
	DistanceLimit float64
	Limits        cluster.Limits
	ProgressEvery int
}

// Pipeline orchestrates resolution and customer binding runs.
type Pipeline struct {
	backend  store.Backend
	resolver *resolve.Resolver
	matcher  *customer.Matcher
	metrics  *audit.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// New creates a pipeline. metrics may be nil.
func New(backend store.Backend, log *zap.Logger, metrics *audit.Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		backend:  backend,
		resolver: resolve.New(log.Named("resolve")),
		matcher:  customer.NewMatcher(log.Named("customer")),
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// run carries the state of one resolution run.
type run struct {
	opts     Options
	cache    *RunCache
	engine   *cluster.Engine
	attacher *cluster.Attacher
	tracker  *audit.Tracker
	// covered holds buildings of active facilities that stay as they are.
	covered map[int64]struct{}
	// claimed holds buildings resolved earlier in this run.
	claimed  map[int64]struct{}
	orphans  map[int64]struct{}
	units    int
	facility map[int64]model.Facility
}

// Run resolves the buildings of the given parcels (all when empty) for the
// target period. Cancellation is honoured between clusters only; the run
// record is completed with status cancelled and the context error returned.
func (p *Pipeline) Run(ctx context.Context, opts Options) (model.ImportRun, error) {
	if opts.DistanceLimit <= 0 {
		opts.DistanceLimit = proximity.DefaultDistanceLimit
	}
	if opts.Limits == (cluster.Limits{}) {
		opts.Limits = cluster.DefaultLimits()
	}
	if opts.AsOf.IsZero() {
		opts.AsOf = opts.Period.Start
	}
	if !opts.Period.Valid() {
		return model.ImportRun{}, errors.New("invalid period: end before start")
	}

	rec := model.ImportRun{
		ID:        uuid.NewString(),
		Kind:      "resolve",
		StartedAt: p.now(),
		Status:    model.RunRunning,
		AsOf:      model.Day(opts.AsOf),
		Period:    opts.Period,
		Parcels:   opts.Parcels,
		DryRun:    opts.DryRun,
	}
	stores := p.backend.Stores()
	if err := stores.Runs.Start(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to create import run: %w", err)
	}
	log := p.log.With(zap.String("run_id", rec.ID))
	log.Info("import run started",
		zap.Time("as_of", rec.AsOf),
		zap.Strings("parcels", opts.Parcels),
		zap.Bool("dry_run", opts.DryRun))

	tracker := audit.NewTracker(log, p.metrics)
	err := p.resolveAll(ctx, stores, opts, tracker, log)
	return p.complete(ctx, stores, rec, tracker, err, log)
}

func (p *Pipeline) complete(ctx context.Context, stores store.Stores, rec model.ImportRun, tracker *audit.Tracker, runErr error, log *zap.Logger) (model.ImportRun, error) {
	now := p.now()
	rec.CompletedAt = &now
	rec.Summary = tracker.Summary()
	switch {
	case runErr == nil:
		rec.Status = model.RunCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		rec.Status = model.RunCancelled
		rec.Error = runErr.Error()
	default:
		rec.Status = model.RunFailed
		rec.Error = runErr.Error()
	}

	if err := stores.Runs.Complete(context.WithoutCancel(ctx), rec); err != nil {
		return rec, errors.Join(runErr, fmt.Errorf("failed to complete import run: %w", err))
	}
	log.Info("import run finished",
		zap.String("status", string(rec.Status)),
		zap.Int("clusters", rec.Summary.Clusters),
		zap.Int("created", rec.Summary.Created),
		zap.Int("extended", rec.Summary.Extended),
		zap.Int("unchanged", rec.Summary.Unchanged),
		zap.Int("closed", rec.Summary.Closed),
		zap.Int("migrated", rec.Summary.Migrated),
		zap.Int("bound", rec.Summary.Bound),
		zap.Int("skipped", tracker.SkippedTotal()))
	return rec, runErr
}

func (p *Pipeline) resolveAll(ctx context.Context, stores store.Stores, opts Options, tracker *audit.Tracker, log *zap.Logger) error {
	tables, err := stores.CodeTables.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load code tables: %w", err)
	}
	buildings, err := stores.Buildings.ListByParcel(ctx, opts.Parcels)
	if err != nil {
		return fmt.Errorf("failed to load buildings: %w", err)
	}
	active, err := stores.Facilities.ListActive(ctx, opts.AsOf)
	if err != nil {
		return fmt.Errorf("failed to load active facilities: %w", err)
	}

	cache := NewRunCache(buildings, tables, opts.AsOf, opts.DistanceLimit, tracker)
	r := &run{
		opts:     opts,
		cache:    cache,
		engine:   cluster.NewEngine(cache.Index),
		attacher: cluster.NewAttacher(cache.Index, cache.Classifier, cache.Snapshots),
		tracker:  tracker,
		covered:  make(map[int64]struct{}),
		claimed:  make(map[int64]struct{}),
		orphans:  make(map[int64]struct{}),
		facility: make(map[int64]model.Facility, len(active)),
	}
	for _, f := range active {
		r.facility[f.ID] = f
	}

	candidates := p.selectCandidates(r, active, log)
	tracker.Candidates(len(candidates))
	log.Info("candidates selected",
		zap.Int("buildings", len(buildings)),
		zap.Int("usable", len(cache.Snapshots)),
		zap.Int("candidates", len(candidates)),
		zap.Int("active_facilities", len(active)))

	if err := p.clusterAndResolve(ctx, r, candidates, log); err != nil {
		return err
	}
	return p.sweepOrphans(ctx, r, log)
}

// selectCandidates returns anchor buildings that are not covered by an
// active facility, or whose facility no longer reflects the extract.
func (p *Pipeline) selectCandidates(r *run, active []model.Facility, log *zap.Logger) []int64 {
	holder := make(map[int64]int64)
	for _, f := range active {
		for _, id := range f.Buildings {
			holder[id] = f.ID
		}
	}
	anyCovered := func(id int64) bool {
		_, ok := holder[id]
		return ok
	}

	stale := make(map[int64]struct{})
	for _, f := range active {
		if reason, ok := r.staleReason(f, anyCovered); ok {
			stale[f.ID] = struct{}{}
			log.Debug("facility re-enters resolution", zap.Int64("facility_id", f.ID), zap.String("reason", reason))
		}
	}
	for id, fid := range holder {
		if _, ok := stale[fid]; !ok {
			r.covered[id] = struct{}{}
		}
	}

	var candidates []int64
	for id, s := range r.cache.Snapshots {
		if _, ok := r.covered[id]; ok {
			continue
		}
		if r.cache.Classifier.CanAnchor(s) {
			candidates = append(candidates, id)
		}
	}
	return model.SortedUnique(candidates)
}

// staleReason reports why an active facility must be resolved again: its
// parties differ from its buildings' current ones, one of its buildings was
// decommissioned, or an uncovered auxiliary building now attaches to it.
// Facilities with buildings outside the loaded extract are left alone.
func (r *run) staleReason(f model.Facility, covered func(int64) bool) (string, bool) {
	var owners, inhabitants, anchors []int64
	for _, id := range f.Buildings {
		if _, ok := r.cache.Decommissioned[id]; ok {
			return "decommissioned building", true
		}
		s, ok := r.cache.Snapshots[id]
		if !ok {
			return "", false
		}
		owners = append(owners, s.OwnerIDs...)
		inhabitants = append(inhabitants, s.InhabitantIDs...)
		if r.cache.Classifier.CanAnchor(s) {
			anchors = append(anchors, id)
		}
	}
	if !model.SameIDs(owners, f.PartyIDs(model.RoleOwner)) || !model.SameIDs(inhabitants, f.PartyIDs(model.RoleInhabitant)) {
		return "parties changed", true
	}
	if len(anchors) > 0 {
		grown := r.attacher.Attach(cluster.Cluster{Members: anchors}, covered)
		if len(grown.Auxiliary) > 0 {
			return "auxiliary buildings attach", true
		}
	}
	return "", false
}

func (p *Pipeline) clusterAndResolve(ctx context.Context, r *run, candidates []int64, log *zap.Logger) error {
	byParcel := make(map[string][]int64)
	for _, id := range candidates {
		parcel := r.cache.Snapshots[id].ParcelID
		byParcel[parcel] = append(byParcel[parcel], id)
	}
	parcels := make([]string, 0, len(byParcel))
	for parcel := range byParcel {
		parcels = append(parcels, parcel)
	}
	sort.Strings(parcels)

	for _, parcel := range parcels {
		clusters := r.engine.Partition(r.cache.Snapshot(byParcel[parcel]), r.opts.Seed)
		for _, c := range clusters {
			if err := p.resolveCluster(ctx, r, c, log); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveCluster attaches, checks and resolves one cluster. An implausible
// cluster is regrouped by address set first and then, for groups still
// implausible, split into one cluster per building.
func (p *Pipeline) resolveCluster(ctx context.Context, r *run, c cluster.Cluster, log *zap.Logger) error {
	return p.resolveChecked(ctx, r, c, fallbackAddress, log)
}

type fallback int

const (
	fallbackAddress fallback = iota
	fallbackBuilding
	fallbackNone
)

func (p *Pipeline) resolveChecked(ctx context.Context, r *run, c cluster.Cluster, next fallback, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c = r.attacher.Attach(c, r.excluded)
	err := cluster.CheckPlausible(c, r.cache.Snapshots, r.opts.Limits)
	if err == nil {
		return p.resolveUnit(ctx, r, c, log)
	}
	r.tracker.Skip(audit.ReasonImplausibleCluster, err, zap.Int64s("buildings", c.BuildingIDs()))

	var parts []cluster.Cluster
	if next == fallbackAddress {
		parts = cluster.SplitByAddress(c, r.cache.Snapshots)
		next = fallbackBuilding
	}
	if parts == nil && next == fallbackBuilding && len(c.Members) > 1 {
		parts = cluster.SplitPerBuilding(c)
		next = fallbackNone
	}
	for _, part := range parts {
		if err := p.resolveChecked(ctx, r, part, next, log); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) excluded(id int64) bool {
	if _, ok := r.covered[id]; ok {
		return true
	}
	_, ok := r.claimed[id]
	return ok
}

// resolveUnit runs one resolution in its own transaction. Conflicts are
// skipped; any other failure aborts the run.
func (p *Pipeline) resolveUnit(ctx context.Context, r *run, c cluster.Cluster, log *zap.Logger) error {
	start := time.Now()
	ids := c.BuildingIDs()
	req := resolve.Request{
		Buildings: r.cache.Snapshot(ids),
		Period:    r.opts.Period,
		AsOf:      r.opts.AsOf,
	}

	var res resolve.Result
	err := p.backend.RunInTx(ctx, func(st store.Stores) error {
		var err error
		res, err = p.resolver.Resolve(ctx, st, req)
		if err != nil {
			return err
		}
		if r.opts.DryRun {
			return errDryRun
		}
		return nil
	})
	r.tracker.ObserveCluster(start)
	switch {
	case err == nil, errors.Is(err, errDryRun):
	case errors.Is(err, resolve.ErrConflictingFacility):
		r.tracker.Skip(audit.ReasonConflictingFacility, err, zap.Int64s("buildings", ids))
		return nil
	default:
		return fmt.Errorf("failed to resolve cluster %v: %w", ids, err)
	}

	for _, id := range ids {
		r.claimed[id] = struct{}{}
		delete(r.orphans, id)
	}
	for _, fid := range res.Closed {
		if f, ok := r.facility[fid]; ok {
			for _, id := range f.Buildings {
				if _, claimed := r.claimed[id]; !claimed {
					r.orphans[id] = struct{}{}
				}
			}
		}
	}
	r.tracker.Resolved(string(res.Outcome), len(res.Closed), res.Migrated)

	r.units++
	if every := r.opts.ProgressEvery; every > 0 && r.units%every == 0 {
		s := r.tracker.Summary()
		log.Info("progress",
			zap.Int("clusters", s.Clusters),
			zap.Int("created", s.Created),
			zap.Int("skipped", r.tracker.SkippedTotal()))
	}
	return nil
}

// sweepOrphans re-clusters, once, the anchors that lost their facility
// because it was closed for a successor that did not take them over.
func (p *Pipeline) sweepOrphans(ctx context.Context, r *run, log *zap.Logger) error {
	var orphans []int64
	for id := range r.orphans {
		if _, claimed := r.claimed[id]; claimed {
			continue
		}
		s, ok := r.cache.Snapshots[id]
		if ok && r.cache.Classifier.CanAnchor(s) {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	orphans = model.SortedUnique(orphans)
	log.Info("re-clustering orphaned buildings", zap.Int64s("buildings", orphans))
	r.orphans = make(map[int64]struct{})
	return p.clusterAndResolve(ctx, r, orphans, log)
}
