package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/audit"
	"github.com/kohde-resolver/internal/customer"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/store"
)

// BindCustomers binds every unbound customer record to its facility, one
// transaction per record. Records without a facility or with an ambiguous
// one are skipped and counted; they are never guessed.
func (p *Pipeline) BindCustomers(ctx context.Context, dryRun bool) (model.ImportRun, error) {
	rec := model.ImportRun{
		ID:        uuid.NewString(),
		Kind:      "customers",
		StartedAt: p.now(),
		Status:    model.RunRunning,
		AsOf:      model.Day(p.now()),
		DryRun:    dryRun,
	}
	stores := p.backend.Stores()
	if err := stores.Runs.Start(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to create import run: %w", err)
	}
	log := p.log.With(zap.String("run_id", rec.ID))
	tracker := audit.NewTracker(log, p.metrics)

	err := p.bindAll(ctx, stores, dryRun, tracker, log)
	return p.complete(ctx, stores, rec, tracker, err, log)
}

func (p *Pipeline) bindAll(ctx context.Context, stores store.Stores, dryRun bool, tracker *audit.Tracker, log *zap.Logger) error {
	customers, err := stores.Customers.ListUnbound(ctx)
	if err != nil {
		return fmt.Errorf("failed to list customers: %w", err)
	}
	log.Info("binding customer records", zap.Int("customers", len(customers)))

	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return err
		}
		var facilityID int64
		err := p.backend.RunInTx(ctx, func(st store.Stores) error {
			f, err := p.matcher.Match(ctx, st, c)
			if err != nil {
				return err
			}
			facilityID = f.ID
			if err := st.Customers.Bind(ctx, c.ID, f.ID, p.now()); err != nil {
				return fmt.Errorf("failed to bind customer %d: %w", c.ID, err)
			}
			if dryRun {
				return errDryRun
			}
			return nil
		})
		switch {
		case err == nil, errors.Is(err, errDryRun):
			tracker.Bound()
			log.Debug("customer bound", zap.Int64("customer_id", c.ID), zap.Int64("facility_id", facilityID))
		case errors.Is(err, customer.ErrNoCandidates):
			tracker.Skip(audit.ReasonNoCandidates, err, zap.Int64("customer_id", c.ID))
		case errors.Is(err, customer.ErrUnresolved):
			tracker.Skip(audit.ReasonUnresolvedCustomer, err, zap.Int64("customer_id", c.ID))
		default:
			return err
		}
	}
	return nil
}
