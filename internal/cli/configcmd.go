package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/config"
)

const redacted = "********"

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after defaults, the config file and CEREMONY_*
environment variables are merged. Secrets are redacted.

Example:
  ceremony config --config ./ceremony.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				_ = rootOpts.formatter(cmd).Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			shown := redact(*cfg)
			text, err := shown.YAML()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			return rootOpts.formatter(cmd).Success(shown, strings.TrimRight(string(text), "\n"))
		},
	}
}

func redact(cfg config.Config) config.Config {
	if cfg.Sync.Secret != "" {
		cfg.Sync.Secret = redacted
	}
	if cfg.Server.JWTSecret != "" {
		cfg.Server.JWTSecret = redacted
	}
	return cfg
}
