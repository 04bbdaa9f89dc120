package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/sweep/internal/config"
	"github.com/flemzord/sweep/pkg/app"
)

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a new configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			useDefaults, _ := cmd.Flags().GetBool("defaults")
			force, _ := cmd.Flags().GetBool("force")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			opts := config.DefaultInitOptions()
			if !useDefaults {
				if err := askInitOptions(&opts); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
						return nil
					}
					return err
				}
			}

			out, err := config.Render(opts)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(path, out, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("defaults", false, "Skip the prompts and use default answers")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func askInitOptions(opts *config.InitOptions) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Server role").
				Options(huh.NewOptions("single", "leader", "replica")...).
				Value(&opts.ServerRole),
			huh.NewSelect[string]().
				Title("Leadership oracle").
				Description("Decides which node owns exclusive tasks").
				Options(
					huh.NewOption("SQLite lease (one host)", config.OracleSQLite),
					huh.NewOption("Redis lease (many hosts)", config.OracleRedis),
					huh.NewOption("Static (always owner)", config.OracleStatic),
				).
				Value(&opts.Oracle),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis URL").
				Placeholder("redis://localhost:6379/0").
				Value(&opts.RedisURL).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("a URL is required")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return opts.Oracle != config.OracleRedis }),
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Value(&opts.DataDir),
			huh.NewConfirm().
				Title("Enable content version cleanup?").
				Value(&opts.EnableCleanup),
			huh.NewConfirm().
				Title("Export Prometheus metrics?").
				Value(&opts.Telemetry),
			huh.NewInput().
				Title("Gateway bind address").
				Description("Leave empty to disable the HTTP gateway").
				Value(&opts.GatewayBind),
		),
	)
	return form.Run()
}
