package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newTopologyCmd(flags *globalFlags, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Broker topology operations",
	}
	cmd.AddCommand(newTopologyDeclareCmd(flags, logger))
	return cmd
}

func newTopologyDeclareCmd(flags *globalFlags, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "declare",
		Short: "Declare every exchange and queue named by the loaded class configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerOrDefault(logger)

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			adapter, err := dialBroker(flags, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			ctx := cmd.Context()
			if err := adapter.Declare(ctx, cfg.Classes); err != nil {
				return err
			}

			log.Info("topology declared", "exchanges", len(cfg.Classes.Exchanges()), "queues", len(cfg.Classes.Queues()))
			return nil
		},
	}
}
