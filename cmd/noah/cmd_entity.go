package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/cli"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/util"
)

// maxListColumns bounds the table width of list output
const maxListColumns = 7

// filterFlags maps API list filters to flag names
var filterFlags = map[string]string{
	"search":        "search",
	"olt_uuid":      "olt",
	"olt_card_uuid": "card",
	"router_uuid":   "router",
}

// hidden from list tables; still shown by show and --json
var sensitiveFields = map[string]bool{
	"password":      true,
	"secret_radius": true,
	"community":     true,
}

// newEntityCmd builds the command group for e. Verbs the entity's API
// does not support are not registered.
func newEntityCmd(a *App, e *inventory.Entity) *cobra.Command {
	cmd := &cobra.Command{
		Use:     e.Name,
		Aliases: inventory.Aliases(e.Name),
		Short:   "Manage " + e.Title + " records",
		Long: fmt.Sprintf(`Manage %s records (%s).

Supported operations: list, %s`, e.Title, e.Base, strings.Join(e.CapabilityNames(), ", ")),
	}

	cmd.AddCommand(newListCmd(a, e))
	if e.Supports(inventory.CanRead) {
		cmd.AddCommand(newShowCmd(a, e))
	}
	if e.Supports(inventory.CanCreate) {
		cmd.AddCommand(newCreateCmd(a, e))
	}
	if e.Supports(inventory.CanUpdate) {
		cmd.AddCommand(newUpdateCmd(a, e))
	}
	if e.Supports(inventory.CanDelete) {
		cmd.AddCommand(newDeleteCmd(a, e))
	}
	if e.Supports(inventory.CanDeleteMany) {
		cmd.AddCommand(newDeleteManyCmd(a, e))
	}
	if e.Supports(inventory.CanSync) {
		cmd.AddCommand(newSyncCmd(a, e))
	}
	if e.Supports(inventory.CanSyncParent) {
		cmd.AddCommand(newSyncParentCmd(a, e))
	}
	return cmd
}

func (a *App) store(e *inventory.Entity) (*inventory.Store, error) {
	return a.registry.Store(e.Name)
}

func newListCmd(a *App, e *inventory.Entity) *cobra.Command {
	var (
		page    int
		limit   int
		detail  bool
		filters = map[string]*string{}
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + e.Title + " records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(e)
			if err != nil {
				return err
			}

			q := inventory.ListQuery{Page: page, Limit: limit, Filters: map[string]string{}}
			if !cmd.Flags().Changed("limit") && a.settings != nil && a.settings.PageSize > 0 {
				q.Limit = a.settings.PageSize
			}
			for key, v := range filters {
				q.Filters[key] = *v
			}
			if _, ok := filters["olt_uuid"]; ok && q.Filters["olt_uuid"] == "" && a.settings != nil {
				q.Filters["olt_uuid"] = a.settings.DefaultOLT
			}

			var p *inventory.Page
			if detail {
				p, err = s.FetchListDetail(cmd.Context(), q)
			} else {
				p, err = s.FetchList(cmd.Context(), q)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.format() == cli.FormatJSON {
				return cli.PrintJSON(out, map[string]any{"items": p.Items, "meta": s.Meta()})
			}
			printRecords(out, e, p.Items)
			printPagination(out, s.Meta(), len(p.Items))
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", e.DefaultLimit, "Records per page")
	for _, key := range e.Filters {
		name := filterFlags[key]
		if name == "" {
			name = key
		}
		filters[key] = cmd.Flags().String(name, "", "Filter by "+key)
	}
	if e.Supports(inventory.CanListDetail) {
		cmd.Flags().BoolVar(&detail, "detail", false, "Use the detail listing (joined parent records)")
	}
	return cmd
}

func newShowCmd(a *App, e *inventory.Entity) *cobra.Command {
	var hints inventory.Hints
	cmd := &cobra.Command{
		Use:   "show <uuid>",
		Short: "Show one " + e.Title,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(e)
			if err != nil {
				return err
			}
			rec, err := s.GetOne(cmd.Context(), args[0], hints)
			if err != nil {
				return err
			}
			return a.printRecord(cmd.OutOrStdout(), rec)
		},
	}
	if e.Name == inventory.OLTPonPort {
		cmd.Flags().StringVar(&hints.OltUUID, "olt", "", "OLT uuid (narrows the lookup)")
		cmd.Flags().StringVar(&hints.OltCardUUID, "card", "", "OLT card uuid (narrows the lookup)")
	}
	return cmd
}

func newCreateCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "create <key=value>...",
		Short: "Create a " + e.Title,
		Long: fmt.Sprintf(`Create a %s from key=value pairs.

Fields: %s`, e.Title, strings.Join(fields(e), ", ")),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := util.ParseKeyValues(args)
			if err != nil {
				return err
			}
			s, err := a.store(e)
			if err != nil {
				return err
			}
			rec, err := s.Create(cmd.Context(), payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintln(out, green("Created "+e.Title+"."))
				return nil
			}
			if a.format() == cli.FormatJSON {
				return cli.PrintJSON(out, rec)
			}
			fmt.Fprintf(out, "%s %s\n", green("Created "+e.Title), bold(rec.ID()))
			return nil
		},
	}
}

func newUpdateCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "update <uuid> <key=value>...",
		Short: "Update a " + e.Title,
		Long: fmt.Sprintf(`Update a %s (sent with %s).

Fields: %s`, e.Title, e.Update, strings.Join(fields(e), ", ")),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := util.ParseKeyValues(args[1:])
			if err != nil {
				return err
			}
			s, err := a.store(e)
			if err != nil {
				return err
			}
			if err := s.Update(cmd.Context(), args[0], payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("Updated "+e.Title), bold(args[0]))
			return nil
		},
	}
}

func newDeleteCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uuid>",
		Short: "Delete a " + e.Title,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(e)
			if err != nil {
				return err
			}
			if err := s.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("Deleted "+e.Title), bold(args[0]))
			return nil
		},
	}
}

func newDeleteManyCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-many <uuid>...",
		Short: "Delete several " + e.Title + " records in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			for _, arg := range args {
				ids = append(ids, util.SplitCommaSeparated(arg)...)
			}
			s, err := a.store(e)
			if err != nil {
				return err
			}
			if err := s.RemoveMany(cmd.Context(), ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", green("Deleted "+e.Title+" records"), len(ids))
			return nil
		},
	}
}

func newSyncCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [uuid]",
		Short: "Synchronize " + e.Title + " records with the devices",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hint := ""
			if len(args) == 1 {
				hint = args[0]
			}
			s, err := a.store(e)
			if err != nil {
				return err
			}
			res, err := s.Sync(cmd.Context(), hint)
			if err != nil {
				if !s.CanSync() {
					fmt.Fprintln(cmd.ErrOrStderr(), yellow("Sync is not available on this server."))
				}
				return err
			}
			return a.printResult(cmd.OutOrStdout(), "Sync complete", res)
		},
	}
}

func newSyncParentCmd(a *App, e *inventory.Entity) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-olt <olt-uuid>",
		Short: "Discover the " + e.Title + " records of an OLT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(e)
			if err != nil {
				return err
			}
			res, err := s.SyncParent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printResult(cmd.OutOrStdout(), "Sync from OLT complete", res)
		},
	}
}

func (a *App) printRecord(out io.Writer, rec inventory.Record) error {
	if a.format() == cli.FormatJSON {
		return cli.PrintJSON(out, rec)
	}
	cli.KeyValues(out, rec)
	return nil
}

func (a *App) printResult(out io.Writer, msg string, res inventory.Record) error {
	if a.format() == cli.FormatJSON {
		return cli.PrintJSON(out, res)
	}
	fmt.Fprintln(out, green(msg))
	if len(res) > 0 {
		cli.KeyValues(out, res)
	}
	return nil
}

func printRecords(out io.Writer, e *inventory.Entity, items []inventory.Record) {
	if len(items) == 0 {
		fmt.Fprintf(out, "No %s records found\n", e.Title)
		return
	}
	cols := listColumns(e, items)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = strings.ToUpper(c)
	}
	t := cli.NewTableTo(out, headers...)
	for _, it := range items {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cli.Cell(it[c])
		}
		t.Row(row...)
	}
	t.Flush()
}

func printPagination(out io.Writer, m inventory.Meta, n int) {
	p := m.Pagination
	if p.TotalPages == 0 {
		return
	}
	fmt.Fprintln(out, cli.Dim(fmt.Sprintf("Page %d/%d, %d of %d records", p.CurrentPage, p.TotalPages, n, p.Total)))
}

// listColumns picks the id column, then the entity's known fields present
// in the items; entities without known fields use the items' own keys.
func listColumns(e *inventory.Entity, items []inventory.Record) []string {
	present := map[string]bool{}
	for _, it := range items {
		for k := range it {
			present[k] = true
		}
	}

	var cols []string
	add := func(k string) {
		if len(cols) < maxListColumns && present[k] && !sensitiveFields[k] {
			cols = append(cols, k)
			present[k] = false
		}
	}
	add("uuid")
	add("id")

	known := fields(e)
	if len(known) == 0 {
		for k := range present {
			known = append(known, k)
		}
		sort.Strings(known)
	}
	for _, k := range known {
		add(k)
	}
	return cols
}

// fields lists the payload fields the entity's sanitizer handles
func fields(e *inventory.Entity) []string {
	sz := e.Sanitizer
	var out []string
	seen := map[string]bool{}
	for _, group := range [][]string{sz.Strings, sz.Numbers, sz.NullableNumbers} {
		for _, f := range group {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
