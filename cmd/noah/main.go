// Noah - network inventory CLI
//
// A command-line client for the noah inventory API with:
//   - One command group per inventory entity (router, olt, olt-card, ...)
//   - Persisted login session shared with the dashboard gateway
//   - Audit logging of every mutation
//
// Command pattern:
//
//	noah <entity> <verb> [args] [flags]
//
// Verbs:
//
//	list               - One page of records (--page, --limit, filters)
//	show <uuid>        - One record
//	create k=v...      - Create from key=value pairs
//	update <uuid> k=v  - Update fields
//	delete <uuid>      - Delete one record
//	delete-many <uuid> - Delete several records in one request
//	sync [uuid]        - Pull state from the devices
//	sync-olt <uuid>    - Discover the cards of an OLT (olt-card only)
//
// Examples:
//
//	noah login --user admin
//	noah router list --search core
//	noah olt-card list --olt 6f1c... --detail
//	noah bandwith create name=100M upload_max=100 download_max=100
//	noah serve
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/cli"
	"github.com/noah-network/noah/pkg/config"
	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/settings"
	"github.com/noah-network/noah/pkg/util"
	"github.com/noah-network/noah/pkg/version"
)

// App is the state shared by every command of one invocation
type App struct {
	// Global option flags
	configPath   string
	settingsPath string
	logFormat    string
	verbose      bool
	jsonOutput   bool

	cfg      *config.Config
	settings *settings.Settings
	client   *api.Client
	creds    credential.Store
	session  *auth.Session
	registry *inventory.Registry

	in      io.Reader
	closers []func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &App{in: os.Stdin}
	defer a.Close()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:               "noah",
		Short:             "Network inventory CLI",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		Long: `Noah manages the network inventory: routers, OLTs, OLT cards, PON ports,
bandwidth and packet/group profiles.

Log in once with 'noah login'; the token is kept until logout or until the
server rejects it.

  noah <entity> <verb> [args] [flags]`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetLogOutput(cmd.ErrOrStderr())
			if err := util.SetLogFormat(a.logFormat); err != nil {
				return err
			}
			if a.verbose {
				util.SetLogLevel("debug")
			} else {
				util.SetLogLevel("warn")
			}
			if skipsInit(cmd) {
				return nil
			}
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", a.configPath, "Config file (default ~/.noah/config.yaml)")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", a.settingsPath, "Settings file (default ~/.noah/settings.json)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", a.logFormat, "Log format: text or json")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "JSON output")

	root.AddGroup(
		&cobra.Group{ID: "inventory", Title: "Inventory:"},
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, e := range inventory.Entities() {
		cmd := newEntityCmd(a, e)
		cmd.GroupID = "inventory"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{newLoginCmd(a), newLogoutCmd(a), newStatusCmd(a)} {
		cmd.GroupID = "session"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{
		newServeCmd(a), newShellCmd(a), newSettingsCmd(a), newAuditCmd(a), newVersionCmd(),
	} {
		cmd.GroupID = "meta"
		root.AddCommand(cmd)
	}
	return root
}

// skipsInit reports commands that need neither config nor API client
func skipsInit(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "help", "completion":
			return true
		}
	}
	return false
}

// init loads config and settings and wires the client, session, registry
// and audit logger. Components already set (tests) are kept.
func (a *App) init(stderr io.Writer) error {
	if a.settings == nil {
		s, err := a.loadSettings()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			s = &settings.Settings{}
		}
		a.settings = s
	}
	if a.client != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	switch cfg.Credential.Backend {
	case config.BackendRedis:
		rs := credential.NewRedisStore(cfg.Credential.RedisAddr, cfg.Credential.RedisDB, cfg.Credential.RedisKey)
		a.closers = append(a.closers, rs.Close)
		a.creds = rs
	default:
		a.creds = credential.NewFileStore(cfg.Credential.Path)
	}

	userAgent := cfg.API.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	opts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithCredentialStore(a.creds),
		api.WithUserAgent(userAgent),
	}
	if cfg.Tunnel.Enabled() {
		tunnel, err := api.NewSSHTunnel(api.TunnelConfig{
			Host:       cfg.Tunnel.Host,
			User:       cfg.Tunnel.User,
			Password:   cfg.Tunnel.Password,
			KnownHosts: cfg.Tunnel.KnownHosts,
		})
		if err != nil {
			return fmt.Errorf("opening ssh tunnel: %w", err)
		}
		a.closers = append(a.closers, tunnel.Close)
		opts = append(opts, api.WithSSHTunnel(tunnel))
	}
	a.client = api.New(cfg.API.BaseURL, opts...)
	a.client.OnAuthExpired(func(api.AuthExpired) {
		fmt.Fprintln(stderr, yellow("Session expired: run 'noah login'"))
	})

	auditLogger, err := audit.NewFileLogger(cfg.Audit.Path, audit.RotationConfig{
		MaxSize:    int64(cfg.Audit.MaxSizeMB) * 1024 * 1024,
		MaxBackups: cfg.Audit.MaxBackups,
	})
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
	} else {
		a.closers = append(a.closers, auditLogger.Close)
		audit.SetDefaultLogger(auditLogger)
	}

	a.session = auth.NewSession(a.client, a.creds)
	a.session.Source = "cli"
	a.registry = inventory.NewRegistry(a.client, inventory.WithActor(a.settings.LastUser, "cli"))
	return nil
}

func (a *App) loadSettings() (*settings.Settings, error) {
	if a.settingsPath != "" {
		return settings.LoadFrom(a.settingsPath)
	}
	return settings.Load()
}

func (a *App) saveSettings(s *settings.Settings) error {
	if a.settingsPath != "" {
		return s.SaveTo(a.settingsPath)
	}
	return s.Save()
}

// Close releases the tunnel, redis client and audit file
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			util.Debugf("close: %v", err)
		}
	}
	a.closers = nil
}

// format returns the output format from --json or the settings default
func (a *App) format() cli.Format {
	if a.jsonOutput {
		return cli.FormatJSON
	}
	if a.settings != nil {
		if f, err := cli.ParseFormat(a.settings.GetOutputFormat()); err == nil {
			return f
		}
	}
	return cli.FormatTable
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), "noah")
		},
	}
}

func printVersion(w io.Writer, tool string) {
	if version.Version == "dev" {
		fmt.Fprintf(w, "%s dev build (use 'make build' for version info)\n", tool)
	} else {
		fmt.Fprintf(w, "%s %s (%s)\n", tool, version.Version, version.GitCommit)
	}
}

func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
