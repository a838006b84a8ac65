// eventctl runs lifecycle operations against the events database without
// going through the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"artpriyo-settlement/repository"
	"artpriyo-settlement/services"
	"artpriyo-settlement/utils"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type engine struct {
	store     *repository.GormStore
	ledger    *services.Ledger
	ranker    *services.Ranker
	lifecycle *services.LifecycleService
}

func open(cfg *utils.Config) (*engine, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := repository.NewGormStore(db)
	clock := clockwork.NewRealClock()
	log := utils.NewLogger("eventctl")

	ref := services.NewReferenceClock(clock, cfg.ReferenceZone)
	ledger := services.NewLedger(store, clock)
	ranker := services.NewRanker(store, store)
	dist := services.NewDistributor(store, ledger, log)
	return &engine{
		store:     store,
		ledger:    ledger,
		ranker:    ranker,
		lifecycle: services.NewLifecycleService(store, ranker, dist, ref, cfg.SettlementLease, cfg.SettlementConcurrency, nil, log),
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	var eng *engine
	var cfg *utils.Config

	root := &cobra.Command{
		Use:           "eventctl",
		Short:         "Operate the event lifecycle and settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			var err error
			if cfg, err = utils.LoadConfig(); err != nil {
				return err
			}
			eng, err = open(cfg)
			return err
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the settlement tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repository.AutoMigrate(eng.store.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ migrated")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Run one lifecycle scan and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := eng.lifecycle.RunLifecycleScan(cmd.Context())
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "settle <event-id>",
		Short: "Settle one ended event now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := eng.lifecycle.SettleEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "leaderboard <event-id>",
		Short: "Print the current ranking of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := eng.ranker.GetLeaderboard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reconcile <user-id>...",
		Short: "Compare wallet balances with their ledgers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drifted := 0
			out := make([]*services.Reconciliation, 0, len(args))
			for _, id := range args {
				r, err := eng.ledger.Reconcile(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("user %s: %w", id, err)
				}
				if !r.Balanced() {
					drifted++
				}
				out = append(out, r)
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if drifted > 0 {
				return fmt.Errorf("%d wallet(s) drifted from their ledger", drifted)
			}
			return nil
		},
	})

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		stop()
		os.Exit(1)
	}
}
