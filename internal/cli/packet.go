package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitobox/queuerouter/internal/packet"
)

func newPacketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packet",
		Short: "Inspect captured packets",
	}
	cmd.AddCommand(newPacketInspectCmd())
	return cmd
}

func newPacketInspectCmd() *cobra.Command {
	var cargoKey, settingsKey string

	cmd := &cobra.Command{
		Use:   "inspect <json-file>",
		Short: "Decode a wire-format packet and print its settings and route state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read packet file: %w", err)
			}

			pkt, err := packet.Decode(raw, cargoKey, settingsKey)
			if err != nil {
				return fmt.Errorf("decode packet: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "record_id:    %s\n", pkt.Settings.RecordID)
			fmt.Fprintf(cmd.OutOrStdout(), "process_route: %v\n", pkt.Settings.ProcessRoute)
			fmt.Fprintf(cmd.OutOrStdout(), "history:      %v\n", pkt.Settings.History)
			fmt.Fprintf(cmd.OutOrStdout(), "retry_ready:  %v\n", pkt.Settings.RetryReady)
			fmt.Fprintf(cmd.OutOrStdout(), "retry_count:  %v\n", pkt.Settings.RetryCount)
			if pkt.Settings.SitoReturn != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sito_return:  %s / %s\n", pkt.Settings.SitoReturn.Code, pkt.Settings.SitoReturn.Description)
			}
			if pkt.Settings.RequestStatus != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "request_status: %s (%s)\n", pkt.Settings.RequestStatus, pkt.Settings.RequestStatusDetail)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cargoKey, "cargo-key", "cargo", "Top-level JSON key holding cargo")
	cmd.Flags().StringVar(&settingsKey, "settings-key", "settings", "Top-level JSON key holding settings")
	return cmd
}
