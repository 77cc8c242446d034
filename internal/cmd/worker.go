package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the alert scans without the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, l, false)
		if err != nil {
			return err
		}
		defer a.close()

		s, dispatcher := a.alerting()
		s.Start()
		a.logger.Info("worker started")

		<-ctx.Done()
		a.logger.Info("shutting down")

		s.Stop()
		dispatcher.Close()
		return nil
	},
}
