package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/config"
	"github.com/evcraddock/advocate/internal/jobs"
	"github.com/evcraddock/advocate/internal/reconcile"
	"github.com/evcraddock/advocate/internal/zone"
)

func newReconcileCmd() *cobra.Command {
	var accountID int64
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Geocode member addresses and assign zones",
		Long: `Bring every account's address_raw, point and zone in line with its address.
Unchanged addresses that already have a point are not geocoded again.

With --enqueue, account.reconcile jobs are queued for the worker instead of
running here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, accountID, enqueue)
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "reconcile a single account by ID")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue jobs for the worker instead of running inline")

	return cmd
}

func runReconcile(cmd *cobra.Command, accountID int64, enqueue bool) error {
	cfg, database, err := loadRuntime()
	if err != nil {
		return err
	}
	defer closeDB(database)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts := account.NewRepository(database)
	out := cmd.OutOrStdout()

	if enqueue {
		if cfg.Queue == config.QueueMemory {
			return fmt.Errorf("--enqueue needs ADV_QUEUE=redis or amqp")
		}
		queue, err := openQueue(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeQueue(queue)

		n, err := enqueueReconcile(ctx, queue, accounts, accountID)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(out, map[string]int{"queued": n})
		}
		fmt.Fprintf(out, "Queued %d account(s) for reconciliation.\n", n)
		return nil
	}

	geocoder, err := newGeocoder(cfg)
	if err != nil {
		return err
	}
	r := reconcile.New(accounts, zone.NewRepository(database), geocoder)

	if accountID != 0 {
		outcome, err := r.ReconcileAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(out, map[string]interface{}{"account_id": accountID, "outcome": outcome.String()})
		}
		fmt.Fprintf(out, "Account #%d: %s\n", accountID, outcome)
		return nil
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(out, summary)
	}
	fmt.Fprintf(out, "Processed %d, updated %d, cleared %d, failed %d\n",
		summary.Processed, summary.Updated, summary.Cleared, summary.Failed)
	return nil
}

// enqueueReconcile queues one account, or all of them when accountID is 0.
func enqueueReconcile(ctx context.Context, q jobs.Enqueuer, accounts *account.Repository, accountID int64) (int, error) {
	ids := []int64{accountID}
	if accountID == 0 {
		var err error
		if ids, err = accounts.ListIDs(ctx); err != nil {
			return 0, err
		}
	} else if _, err := accounts.Get(ctx, accountID); err != nil {
		return 0, err
	}

	for i, id := range ids {
		if err := q.Enqueue(ctx, jobs.KindAccountReconcile, jobs.AccountPayload{AccountID: id}); err != nil {
			return i, fmt.Errorf("queueing account %d: %w", id, err)
		}
	}
	return len(ids), nil
}
