package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitobox/queuerouter/internal/repo"
)

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Read request/request_tags/request_batch rows",
	}
	cmd.AddCommand(newRequestGetCmd())
	return cmd
}

func newRequestGetCmd() *cobra.Command {
	var withTags bool

	cmd := &cobra.Command{
		Use:   "get <request-id>",
		Short: "Print a request row, optionally with its tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			requests := repo.NewRequestRepo(pool)
			rec, err := requests.GetByID(ctx, args[0])
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("request %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("get request: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:            %s\n", rec.ID)
			fmt.Fprintf(out, "state:         %s\n", rec.State)
			fmt.Fprintf(out, "system_id:     %s\n", rec.SystemID)
			fmt.Fprintf(out, "user_id:       %s\n", rec.UserID)
			fmt.Fprintf(out, "request_mode:  %s\n", rec.RequestMode)
			fmt.Fprintf(out, "fallback_mode: %s\n", rec.FallbackMode)
			fmt.Fprintf(out, "sent_time:     %d\n", rec.SentTime)
			fmt.Fprintf(out, "delivery_time: %d\n", rec.DeliveryTime)
			fmt.Fprintf(out, "expires:       %d\n", rec.Expires)

			if withTags {
				tags, err := requests.ListTags(ctx, rec.ID)
				if err != nil {
					return fmt.Errorf("list tags: %w", err)
				}
				for _, t := range tags {
					fmt.Fprintf(out, "tag: %-20s %s\n", t.TagName, t.TagValue)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withTags, "tags", false, "Also print request_tags rows")
	return cmd
}
