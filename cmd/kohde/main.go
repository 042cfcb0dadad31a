package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/audit"
	"github.com/kohde-resolver/internal/config"
	"github.com/kohde-resolver/internal/db"
	"github.com/kohde-resolver/internal/logging"
	"github.com/kohde-resolver/internal/model"
	"github.com/kohde-resolver/internal/pipeline"
	"github.com/kohde-resolver/internal/store/postgres"
	"github.com/kohde-resolver/internal/web"
)

// app holds what every subcommand shares once the root has run.
type app struct {
	cfg config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "kohde",
		Short: "Facility entity resolution engine",
		Long: `Groups buildings into facilities, keeps their periods consistent across imports
and binds incoming customer records to facilities.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.AddCommand(createPingCmd(a))
	rootCmd.AddCommand(createDBCmd(a))
	rootCmd.AddCommand(createResolveCmd(a))
	rootCmd.AddCommand(createCustomersCmd(a))
	rootCmd.AddCommand(createServeCmd(a))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect opens the database and wraps it in the PostgreSQL store.
func (a *app) connect(ctx context.Context) (*db.Connection, *postgres.Store, error) {
	conn, err := db.NewConnection(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return conn, postgres.New(conn.DB), nil
}

// createPingCmd creates a command to test database connectivity
func createPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			fmt.Println("Database connection successful!")
			facilities, err := st.Stores().Facilities.ListActive(cmd.Context(), model.Day(timeNow()))
			if err != nil {
				a.log.Warn("failed to count active facilities", zap.Error(err))
				return nil
			}
			fmt.Printf("Active facilities: %d\n", len(facilities))
			return nil
		},
	}
}

func createDBCmd(a *app) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database utility commands",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the schema and seed the usage classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := st.InitSchema(cmd.Context()); err != nil {
				return err
			}
			if err := st.SeedUsageClasses(cmd.Context(), model.DefaultUsageClasses()); err != nil {
				return err
			}
			a.log.Info("schema ready")
			return nil
		},
	})
	return dbCmd
}

func createResolveCmd(a *app) *cobra.Command {
	var f resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve facilities for an import period",
		Long: `Clusters the buildings of the given parcels (all parcels when none are given)
and creates, extends or closes facilities for the period.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(a.cfg.Engine)
			if err != nil {
				return err
			}
			conn, st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			p := pipeline.New(st, a.log, audit.NewMetrics(prometheus.DefaultRegisterer))
			run, err := p.Run(cmd.Context(), opts)
			printSummary(run)
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func createCustomersCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Bind unbound customer records to facilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			p := pipeline.New(st, a.log, audit.NewMetrics(prometheus.DefaultRegisterer))
			run, err := p.BindCustomers(cmd.Context(), dryRun)
			printSummary(run)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Match customers without binding them")
	return cmd
}

func createServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the facility lookup API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, st, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			s := web.NewServer(a.cfg.Server, st.Stores(), prometheus.DefaultGatherer, a.log.Named("web"))
			return s.Start(cmd.Context())
		},
	}
}

func printSummary(run model.ImportRun) {
	if run.ID == "" {
		return
	}
	s := run.Summary
	fmt.Printf("\n=== Run %s (%s) ===\n", run.ID, run.Status)
	if run.DryRun {
		fmt.Println("Dry run: no changes were committed")
	}
	fmt.Printf("Candidates: %d\n", s.Candidates)
	fmt.Printf("Clusters:   %d\n", s.Clusters)
	fmt.Printf("Created:    %d\n", s.Created)
	fmt.Printf("Extended:   %d\n", s.Extended)
	fmt.Printf("Unchanged:  %d\n", s.Unchanged)
	fmt.Printf("Closed:     %d\n", s.Closed)
	fmt.Printf("Migrated:   %d\n", s.Migrated)
	fmt.Printf("Bound:      %d\n", s.Bound)
	for reason, n := range s.Skipped {
		fmt.Printf("Skipped (%s): %d\n", reason, n)
	}
}
