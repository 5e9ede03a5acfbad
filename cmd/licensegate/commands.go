package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"licensegate/internal/app"
	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
)

// cliOptions holds the global flags
type cliOptions struct {
	configPath string
	verbose    bool
	appOptions []app.Option
}

// newRootCmd builds the command tree. appOpts are passed to every
// application the commands create.
func newRootCmd(appOpts ...app.Option) *cobra.Command {
	o := &cliOptions{appOptions: appOpts}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Gate an application on a remotely validated license",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(o),
		newStatusCmd(o),
		newHWIDCmd(o),
		newActivateCmd(o),
		newResetCmd(o),
		newVersionCmd(),
	)
	return root
}

func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// headless runs fn against an application that never serves HTTP
func (o *cliOptions) headless(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	cfg.UI.OpenBrowser = false
	cfg.Telemetry.MetricsEnabled = false
	cfg.Telemetry.TracingEnabled = false
	if !o.verbose {
		cfg.Logging.Level = "warn"
	}

	a, err := app.New(cfg, o.appOptions...)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func newRunCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the license window until a valid license is present, then keep serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			a, err := app.New(cfg, o.appOptions...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

// statusReport is the JSON printed by status and activate
type statusReport struct {
	State      license.State   `json:"state"`
	LicenseKey string          `json:"licenseKey,omitempty"`
	HardwareID string          `json:"hardwareId,omitempty"`
	Status       *license.Status `json:"status"`
	ExpiringSoon bool            `json:"expiringSoon"`
	Features     map[string]bool `json:"features"`
}

func report(ctx context.Context, a *app.Application) (*statusReport, error) {
	status := a.Gate.CheckExistingLicense(ctx)

	key, ok, err := a.Gate.SavedLicense()
	if err != nil {
		return nil, err
	}
	hwID, err := a.Gate.HardwareID()
	if err != nil {
		return nil, err
	}

	r := &statusReport{
		State:        a.Gate.State(),
		HardwareID:   hwID,
		Status:       status,
		ExpiringSoon: a.Gate.ExpiringSoon(ctx),
		Features:     a.Gate.AvailableFeatures(ctx),
	}
	if ok {
		r.LicenseKey = license.MaskLicenseKey(key)
	}
	return r, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the local license status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.headless(cmd, func(ctx context.Context, a *app.Application) error {
				r, err := report(ctx, a)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), r)
			})
		},
	}
}

func newHWIDCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hwid",
		Short: "Print this device's hardware ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.headless(cmd, func(ctx context.Context, a *app.Application) error {
				id, err := a.Gate.GenerateHardwareID(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
}

func newActivateCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <license-key>",
		Short: "Activate or re-validate a license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.headless(cmd, func(ctx context.Context, a *app.Application) error {
				valid, err := a.Gate.ValidateKey(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", apperrors.UserMessage(err), err)
				}

				r, err := report(ctx, a)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
				if !valid {
					return errors.New("license is not valid")
				}
				return nil
			})
		},
	}
}

func newResetCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved license key and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.headless(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Gate.ClearLicense(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "license cleared")
				return err
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", config.AppName, config.AppVersion)
		},
	}
}
