package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/cli"
	"github.com/noah-network/noah/pkg/settings"
)

func newSettingsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage persistent settings",
		Long: `Manage persistent settings stored in ~/.noah/settings.json.

Settings provide defaults for command flags:
  - page_size:     --limit of list commands
  - output_format: table or json
  - default_olt:   --olt of olt-card and olt-pon-port list
  - last_user:     login user prefill

Examples:
  noah settings show
  noah settings set page_size 50
  noah settings set output_format json
  noah settings clear`,
	}
	cmd.AddCommand(newSettingsShowCmd(a), newSettingsSetCmd(a), newSettingsGetCmd(a), newSettingsClearCmd(a))
	return cmd
}

func (a *App) settingsOrEmpty() *settings.Settings {
	s, err := a.loadSettings()
	if err != nil {
		return &settings.Settings{}
	}
	return s
}

func newSettingsShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			out := cmd.OutOrStdout()
			path := a.settingsPath
			if path == "" {
				path = settings.DefaultSettingsPath()
			}
			fmt.Fprintf(out, "Settings file: %s\n\n", path)

			t := cli.NewTableTo(out, "SETTING", "VALUE")
			printSetting := func(name, value string) {
				if value == "" {
					value = "(not set)"
				}
				t.Row(name, value)
			}
			printSetting("page_size", strconv.Itoa(s.GetPageSize()))
			printSetting("output_format", s.GetOutputFormat())
			printSetting("default_olt", s.DefaultOLT)
			printSetting("last_user", s.LastUser)
			t.Flush()
			return nil
		},
	}
}

func newSettingsSetCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <setting> <value>",
		Short: "Set a setting value",
		Long: `Set a persistent setting value.

Available settings:
  page_size      - Default --limit for list commands (1-500)
  output_format  - table or json
  default_olt    - Default --olt for card and pon-port listings
  last_user      - Login user prefill`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setting, value := args[0], args[1]
			s := a.settingsOrEmpty()
			out := cmd.OutOrStdout()

			switch setting {
			case "page_size", "limit":
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("page_size must be a number: %s", value)
				}
				if err := s.SetPageSize(n); err != nil {
					return err
				}
				fmt.Fprintf(out, "Page size set to: %d\n", n)
			case "output_format", "format":
				if err := s.SetOutputFormat(value); err != nil {
					return err
				}
				fmt.Fprintf(out, "Output format set to: %s\n", value)
			case "default_olt", "olt":
				s.SetDefaultOLT(value)
				fmt.Fprintf(out, "Default OLT set to: %s\n", value)
			case "last_user", "user":
				s.SetLastUser(value)
				fmt.Fprintf(out, "Last user set to: %s\n", value)
			default:
				return fmt.Errorf("unknown setting: %s (valid: page_size, output_format, default_olt, last_user)", setting)
			}

			if err := a.saveSettings(s); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			return nil
		},
	}
}

func newSettingsGetCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <setting>",
		Short: "Get a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}

			var value string
			switch args[0] {
			case "page_size", "limit":
				value = strconv.Itoa(s.GetPageSize())
			case "output_format", "format":
				value = s.GetOutputFormat()
			case "default_olt", "olt":
				value = s.DefaultOLT
			case "last_user", "user":
				value = s.LastUser
			default:
				return fmt.Errorf("unknown setting: %s (valid: page_size, output_format, default_olt, last_user)", args[0])
			}

			if value == "" {
				value = "(not set)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newSettingsClearCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.saveSettings(&settings.Settings{}); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings cleared.")
			return nil
		},
	}
}
