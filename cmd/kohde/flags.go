package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kohde-resolver/internal/cluster"
	"github.com/kohde-resolver/internal/config"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/pipeline"
)

var timeNow = time.Now

type resolveFlags struct {
	start   string
	end     string
	asOf    string
	parcels []string
	seed    []int64
	dryRun  bool
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "Period start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Period end date, inclusive; open when empty")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "Snapshot date for owners and inhabitants; defaults to today")
	cmd.Flags().StringSliceVar(&f.parcels, "parcel", nil, "Restrict the run to these parcels")
	cmd.Flags().Int64SliceVar(&f.seed, "seed", nil, "Buildings that must end up in one facility")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Resolve without committing any change")
	_ = cmd.MarkFlagRequired("start")
}

// options turns the flags into pipeline options using the engine defaults.
func (f *resolveFlags) options(engine config.Engine) (pipeline.Options, error) {
	start, err := parseDay("start", f.start)
	if err != nil {
		return pipeline.Options{}, err
	}
	period := model.Period{Start: start}
	if f.end != "" {
		end, err := parseDay("end", f.end)
		if err != nil {
			return pipeline.Options{}, err
		}
		period.End = &end
	}
	asOf := model.Day(timeNow())
	if f.asOf != "" {
		if asOf, err = parseDay("as-of", f.asOf); err != nil {
			return pipeline.Options{}, err
		}
	}
	if !period.Valid() {
		return pipeline.Options{}, fmt.Errorf("end %s is before start %s", f.end, f.start)
	}

	return pipeline.Options{
		Period:        period,
		AsOf:          asOf,
		Parcels:       f.parcels,
		Seed:          f.seed,
		DryRun:        f.dryRun,
		DistanceLimit: engine.DistanceLimit,
		Limits: cluster.Limits{
			Distance: engine.DistanceLimit,
			Area:     engine.AreaLimit,
			Buffer:   engine.HullBuffer,
		},
		ProgressEvery: engine.ProgressEvery,
	}, nil
}

func parseDay(flag, v string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", flag, v)
	}
	return model.Day(d), nil
}
