// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/config"
	"github.com/xkilldash9x/formgate/internal/observability"
	"github.com/xkilldash9x/formgate/internal/service"
)

// newFactory is swapped in tests to avoid launching Chrome.
var newFactory = service.NewComponentFactory

// cliState is shared by the root command and its subcommands for one invocation.
type cliState struct {
	cfgFile string
	jsonOut bool
	v       *viper.Viper
	cfg     *config.Config
}

// flagBindings maps persistent flags onto configuration keys.
var flagBindings = map[string]string{
	"url":         "auth.login_url",
	"username":    "auth.username",
	"marker":      "auth.marker_cookie",
	"settle-wait": "auth.settle_wait",
	"attempts":    "auth.attempts",
	"headless":    "browser.headless",
	"insecure":    "browser.ignore_tls_errors",
	"log-level":   "logger.level",
}

// NewRootCommand builds a fresh command tree. Each call has its own state.
func NewRootCommand() *cobra.Command {
	state := &cliState{}

	rootCmd := &cobra.Command{
		Use:           "formgate",
		Short:         "formgate logs in through a web form and reuses the session over plain HTTP.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.initialize(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&state.cfgFile, "config", "c", "", "config file (default is ./formgate.yaml)")
	flags.BoolVar(&state.jsonOut, "json", false, "print machine-readable JSON")
	flags.StringP("url", "u", "", "login page URL")
	flags.StringP("username", "U", "", "account name typed into the login form")
	flags.String("marker", "", "cookie whose presence marks a successful login")
	flags.Duration("settle-wait", 0, "pause after page load and after submit")
	flags.Int("attempts", 0, "handshakes to try before giving up")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.Bool("insecure", false, "accept invalid TLS certificates in the browser")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newLoginCmd(state),
		newFetchCmd(state),
		newCredentialCmd(state),
		newHistoryCmd(state),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted.")
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		}
	}
	observability.Sync()
	return err
}

func (s *cliState) initialize(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if err := initializeConfig(v, s.cfgFile); err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formgate"})
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formgate"})
		return err
	}
	observability.InitializeLogger(cfg.Logger())
	observability.GetLogger().Debug("Configuration loaded.", zap.String("config_file", v.ConfigFileUsed()))

	s.v = v
	s.cfg = cfg
	return nil
}

// initializeConfig reads in the config file and FORMGATE_ environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/formgate")
		v.SetConfigName("formgate")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// bindFlags lets explicitly set flags override the file and environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}
