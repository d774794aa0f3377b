package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"res"},
		Short:   "Inspect the registered resources",
	}

	cmd.AddCommand(newResourcesListCommand())
	cmd.AddCommand(newResourcesDescribeCommand())

	return cmd
}

func newResourcesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				resources := a.manager.GetAllResources()
				if output != formatTable {
					out := make([]map[string]any, 0, len(resources))
					for _, r := range resources {
						out = append(out, map[string]any{"name": r.Name(), "path": r.Path(), "label": r.Label(), "key": r.Key()})
					}
					return printValue(cmd.OutOrStdout(), out)
				}

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "NAME\tLABEL\tPATH\tKEY\tACTIONS")
				for _, r := range resources {
					d := r.Describe()
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Label, d.Path, d.Key, strings.Join(d.Actions, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newResourcesDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe RESOURCE",
		Short: "Show a resource's schema, columns, actions and relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), r.Describe())
			})
		},
	}
}
