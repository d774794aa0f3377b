package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/rbkit/pkg/policy"
)

func newActionCommand() *cobra.Command {
	var noRecord bool

	cmd := &cobra.Command{
		Use:   "action RESOURCE ACTION [KEY] [ARG...]",
		Short: "Run a resource action",
		Long: `Run a resource action. Unless --no-record is given, the record named by
KEY is fetched and passed to the action as its first argument, followed by
any further arguments. Actions hidden for the record are refused.`,
		Example: `  # Publish post 1
  rbctl action posts publish 1

  # Run an action that takes no record
  rbctl action posts archive_older_than --no-record 30`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}

				actions := r.GetActions()
				action, ok := actions[args[1]]
				if !ok {
					return fmt.Errorf("resource %s has no action %q (available: %s)",
						r.Name(), args[1], strings.Join(slices.Sorted(maps.Keys(actions)), ", "))
				}

				rest := args[2:]
				var callArgs []any
				subject := policy.Subject{Resource: r.Name()}
				if !noRecord {
					if len(rest) == 0 {
						return fmt.Errorf("action %s needs a record key", args[1])
					}
					resp, err := r.GetOne(ctx, rest[0], nil)
					if err != nil {
						return err
					}
					subject.Record = resp.Record()
					callArgs = append(callArgs, resp.Record())
					rest = rest[1:]
				}
				for _, arg := range rest {
					callArgs = append(callArgs, scalarValue(arg))
				}

				if err := a.authorize(ctx, args[1], subject); err != nil {
					return err
				}
				if !action.Visible(callArgs...) {
					return fmt.Errorf("action %s is not available here", args[1])
				}

				result, err := action.Run(ctx, callArgs...)
				if err != nil {
					return err
				}
				if result == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s done\n", action.Label)
					return nil
				}
				return printValue(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not fetch a record; pass all arguments as is")

	return cmd
}
