package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitobox/queuerouter/internal/clock"
	"github.com/sitobox/queuerouter/internal/delay"
	"github.com/sitobox/queuerouter/internal/packet"
	"github.com/sitobox/queuerouter/internal/router"
)

func newStartCmd(flags *globalFlags, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "start <work-class> <cargo-file>",
		Short: "Begin a flow by publishing cargo to a work class's first stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerOrDefault(logger)
			className, cargoPath := args[0], args[1]

			raw, err := os.ReadFile(cargoPath)
			if err != nil {
				return fmt.Errorf("read cargo file: %w", err)
			}
			var cargo any
			if err := json.Unmarshal(raw, &cargo); err != nil {
				return fmt.Errorf("parse cargo json: %w", err)
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			adapter, err := dialBroker(flags, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			core := router.New(router.Config{
				Classes:     cfg.Classes,
				Broker:      adapter,
				Delay:       delay.NewScheduler(adapter, clock.Real{}, log),
				Clock:       clock.Real{},
				Logger:      log,
				CargoKey:    cfg.CargoKey,
				SettingsKey: cfg.SettingsKey,
			})

			ctx := cmd.Context()
			pkt, err := core.PublishStart(ctx, className, cargo)
			if err != nil {
				return fmt.Errorf("start %s: %w", className, err)
			}

			log.Info("flow started", "class", className, "route", pkt.Settings.ProcessRoute)

			wire, err := packet.Encode(pkt, cfg.CargoKey, cfg.SettingsKey)
			if err != nil {
				return fmt.Errorf("encode started packet: %w", err)
			}
			return printIndented(cmd, wire)
		},
	}
}

// printIndented re-indents a JSON payload before writing it to the
// command's output stream.
func printIndented(cmd *cobra.Command, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
