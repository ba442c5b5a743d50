package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/donorledger/internal/events"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and replay recorded processor events",
	}

	cmd.AddCommand(eventsListCmd())
	cmd.AddCommand(eventsReplayCmd())

	return cmd
}

func eventsListCmd() *cobra.Command {
	var filter events.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := e.eventService().List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			return printEvents(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "only events whose last attempt failed")
	cmd.Flags().StringVarP(&filter.Type, "type", "t", "", "only events of this type")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "maximum events to list")

	return cmd
}

func eventsReplayCmd() *cobra.Command {
	var (
		failed    bool
		eventType string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "replay [event-id...]",
		Short: "Apply recorded events to the ledger again",
		Long: `Replay re-runs stored events through the reconciliation engine.

Examples:
  ledgerctl events replay evt_1Nx...
  ledgerctl events replay --failed --type invoice.paid`,
		Args: func(cmd *cobra.Command, args []string) error {
			if failed == (len(args) > 0) {
				return fmt.Errorf("pass either event ids or --failed")
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			svc := e.eventService()
			out := cmd.OutOrStdout()

			if failed {
				summary, err := svc.ReplayFailed(cmd.Context(), eventType, limit)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "replayed %d, recovered %d\n", summary.Replayed, summary.Recovered)

				if len(summary.Failed) > 0 {
					return fmt.Errorf("still failing: %s", strings.Join(summary.Failed, ", "))
				}

				return nil
			}

			var records []*events.Record

			for _, id := range args {
				rec, err := svc.Replay(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("replaying %s: %w", id, err)
				}

				records = append(records, rec)
			}

			return printEvents(out, records)
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "replay every event whose last attempt failed")
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "with --failed, only events of this type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 500, "with --failed, maximum events to replay")

	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("9"))
)

func eventStatus(r *events.Record) string {
	switch {
	case r.Failed():
		return "failed: " + r.LastError
	case r.ProcessedAt == nil:
		return "pending"
	default:
		return "ok"
	}
}

func printEvents(w io.Writer, records []*events.Record) error {
	rows := make([][]string, 0, len(records))

	for _, r := range records {
		rows = append(rows, []string{r.ID, r.Type, strconv.Itoa(r.Attempts), r.ReceivedAt.Format(time.RFC3339), eventStatus(r)})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "TYPE", "ATTEMPTS", "RECEIVED", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4 && row >= 0 && row < len(records) && records[row].Failed():
				return failedStyle
			default:
				return cellStyle
			}
		})

	_, err := fmt.Fprintln(w, t.String())

	return err
}
