package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/config"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process background jobs",
		Long:  "Consume notification and reconciliation jobs from the Redis or AMQP queue until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := loadRuntime()
			if err != nil {
				return err
			}
			defer closeDB(database)

			if cfg.Queue == config.QueueMemory {
				return fmt.Errorf("ADV_QUEUE=memory runs jobs inside 'adv serve'; use redis or amqp for a separate worker")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			queue, err := openQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeQueue(queue)

			return runWorker(ctx, queue, newJobMux(cfg, database))
		},
	}
}
