package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sitobox/queuerouter/internal/telemetry"
)

// globalFlags holds the persistent flags every subcommand reads.
type globalFlags struct {
	consulAddr  string
	rabbitmqURL string
}

// NewRootCmd assembles routerctl's full command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	logger := telemetry.SetupLogger()

	root := &cobra.Command{
		Use:           "routerctl",
		Short:         "Administer the message router: topology, flow starts, packet inspection, request lookups",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.consulAddr, "consul-addr", "", "Consul agent address (defaults to CONSUL_ADDR env, then 127.0.0.1:8500)")
	root.PersistentFlags().StringVar(&flags.rabbitmqURL, "rabbitmq-url", "", "RabbitMQ URL (defaults to RABBITMQ_URL env)")

	root.AddCommand(newTopologyCmd(flags, logger))
	root.AddCommand(newStartCmd(flags, logger))
	root.AddCommand(newPacketCmd())
	root.AddCommand(newRequestCmd())

	return root
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
