package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/cli"
)

func newAuditCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View audit logs",
		Long: `View audit logs of inventory changes and logins.

Every create, update, delete, sync and login is logged with:
  - Timestamp
  - User and source (cli, shell, gateway)
  - Entity and record ids affected
  - Operation performed
  - Success/failure status

Examples:
  noah audit list --entity router
  noah audit list --last 24h
  noah audit list --op delete --failures`,
	}

	var (
		entity   string
		user     string
		op       string
		record   string
		last     string
		limit    int
		failures bool
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := audit.Filter{
				Entity:      entity,
				User:        user,
				Operation:   op,
				RecordID:    record,
				Limit:       limit,
				FailureOnly: failures,
			}

			if last != "" {
				duration, err := time.ParseDuration(last)
				if err != nil {
					return fmt.Errorf("invalid duration: %s", last)
				}
				filter.StartTime = time.Now().Add(-duration)
			}

			events, err := audit.Query(filter)
			if err != nil {
				return fmt.Errorf("querying audit log: %w", err)
			}

			out := cmd.OutOrStdout()
			if a.format() == cli.FormatJSON {
				return cli.PrintJSON(out, events)
			}

			if len(events) == 0 {
				fmt.Fprintln(out, "No audit events found")
				return nil
			}

			t := cli.NewTableTo(out, "TIMESTAMP", "USER", "SOURCE", "ENTITY", "OPERATION", "RECORDS", "STATUS")
			for _, event := range events {
				status := cli.Status(event.Success)
				if event.Error != "" {
					status += " " + event.Error
				}
				t.Row(
					event.Timestamp.Format("2006-01-02 15:04:05"),
					event.User,
					event.Source,
					event.Entity,
					event.Operation,
					strings.Join(event.RecordIDs, ","),
					status,
				)
			}
			t.Flush()
			return nil
		},
	}

	list.Flags().StringVar(&entity, "entity", "", "Filter by entity")
	list.Flags().StringVar(&user, "user", "", "Filter by user")
	list.Flags().StringVar(&op, "op", "", "Filter by operation (create, update, delete, delete-many, sync, sync-parent, login, logout)")
	list.Flags().StringVar(&record, "record", "", "Filter by record uuid")
	list.Flags().StringVar(&last, "last", "", "Show events from last duration (e.g., 24h, 90m)")
	list.Flags().IntVar(&limit, "limit", 100, "Maximum events to show")
	list.Flags().BoolVar(&failures, "failures", false, "Show only failed operations")

	cmd.AddCommand(list)
	return cmd
}
