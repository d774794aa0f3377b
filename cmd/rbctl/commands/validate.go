package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/rbkit/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [PATH...]",
		Short: "Validate resource definitions",
		Long: `Validate resource definition files.

Without paths, the definitions named in the settings file are loaded and
built against the configured providers. With paths, only the files are
checked, no settings are needed.

This command checks:
  - YAML, JSON and CUE syntax
  - CUE schema conformance
  - Required fields and action timeouts
  - Provider references (settings mode only)`,
		Example: `  # Validate the definitions of the settings file
  rbctl validate

  # Validate specific files or directories
  rbctl validate ./resources ./extra/users.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withApp(cmd, func(_ context.Context, a *app) error {
					names := a.manager.GetAllResourceNames()
					fmt.Fprintf(cmd.OutOrStdout(), "%d resources valid: %s\n", len(names), strings.Join(names, ", "))
					return nil
				})
			}

			log.Debug().Strs("paths", args).Msg("Validating definitions")

			defs, err := config.NewLoader(nil).Load(cmd.Context(), args)
			var problems config.ValidationErrors
			if errors.As(err, &problems) {
				for _, p := range problems {
					fmt.Fprintln(cmd.OutOrStdout(), p.String())
				}
				return fmt.Errorf("%d problems found", len(problems))
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d resources valid in %d files\n", len(defs.Resources), len(defs.SourceFiles))
			return nil
		},
	}

	return cmd
}
