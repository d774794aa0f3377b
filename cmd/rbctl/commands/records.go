package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/policy"
)

func newListCommand() *cobra.Command {
	var (
		filters []string
		sort    string
		order   string
		offset  int
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list RESOURCE",
		Short: "List records of a resource",
		Long: `List records of a resource. The resource's default params apply
unless overridden by flags.`,
		Example: `  # List posts
  rbctl list posts

  # Drafts, newest first
  rbctl list posts --filter status=draft --sort created_at --order desc

  # Second page of ten
  rbctl list posts --offset 10 --limit 10 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := listParams(filters, sort, order, offset, limit)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(ctx, "list", policy.Subject{Resource: r.Name()}); err != nil {
					return err
				}
				resp, err := r.GetMany(ctx, params)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), r, resp)
			})
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter as attribute=value (repeatable)")
	cmd.Flags().StringVar(&sort, "sort", "", "attribute to sort by")
	cmd.Flags().StringVar(&order, "order", "", "sort order (asc, desc)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records")

	return cmd
}

// listParams builds list params from flags. Unset flags are left out so
// the resource defaults apply.
func listParams(filters []string, sort, order string, offset, limit int) (engine.Params, error) {
	params := engine.Params{}
	if len(filters) > 0 {
		f := engine.Filters{}
		for _, kv := range filters {
			name, raw, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("invalid filter %q, expected attribute=value", kv)
			}
			f[name] = scalarValue(raw)
		}
		params[engine.ParamFilters] = f
	}
	if sort != "" {
		params[engine.ParamSort] = sort
	}
	if order != "" {
		if order != "asc" && order != "desc" {
			return nil, fmt.Errorf("invalid order %q, expected asc or desc", order)
		}
		params[engine.ParamOrder] = order
	}
	if offset > 0 {
		params[engine.ParamOffset] = offset
	}
	if limit > 0 {
		params[engine.ParamLimit] = limit
	}
	return params, nil
}

// scalarValue reads raw as a YAML scalar so numbers and booleans keep their
// type. Anything else stays a string.
func scalarValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool, string:
		return v
	}
	return raw
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get RESOURCE KEY",
		Short: "Show a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				resp, err := r.GetOne(ctx, args[1], nil)
				if err != nil {
					return err
				}
				rec := resp.Record()
				if err := a.authorize(ctx, "show", policy.Subject{Resource: r.Name(), Record: rec}); err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), r, rec)
			})
		},
	}
}

// dataFlags are the ways a record payload is passed.
type dataFlags struct {
	data string
	file string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "record as JSON or YAML")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "file holding the record as JSON or YAML, - for stdin")
	cmd.MarkFlagsOneRequired("data", "file")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
}

func (f *dataFlags) record(cmd *cobra.Command) (engine.Record, error) {
	raw := []byte(f.data)
	if f.file != "" {
		var err error
		if f.file == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(f.file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
	}

	var rec engine.Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record is empty")
	}
	return rec, nil
}

func newCreateCommand() *cobra.Command {
	var data dataFlags

	cmd := &cobra.Command{
		Use:   "create RESOURCE",
		Short: "Create a record",
		Long: `Create a record. The payload is checked against the resource's create
schema before it is sent to the data provider.`,
		Example: `  rbctl create posts --data '{"title": "Hello", "status": "draft"}'
  rbctl create posts -f post.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := data.record(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(ctx, "create", policy.Subject{Resource: r.Name(), Record: rec}); err != nil {
					return err
				}
				if err := r.ValidateCreate(rec); err != nil {
					return err
				}
				resp, err := r.CreateOne(ctx, rec, nil)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), r, resp.Record())
			})
		},
	}
	data.register(cmd)

	return cmd
}

func newUpdateCommand() *cobra.Command {
	var data dataFlags

	cmd := &cobra.Command{
		Use:   "update RESOURCE KEY",
		Short: "Update a record",
		Long: `Update a record with the given attributes. The record as it would be
after the update is checked against the resource's update schema.`,
		Example: `  rbctl update posts 1 --data '{"status": "published"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := data.record(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				current, err := r.GetOne(ctx, args[1], nil)
				if err != nil {
					return err
				}
				if err := a.authorize(ctx, "update", policy.Subject{Resource: r.Name(), Record: current.Record()}); err != nil {
					return err
				}

				merged := maps.Clone(current.Record())
				if merged == nil {
					merged = engine.Record{}
				}
				maps.Copy(merged, changes)
				if !r.IsKeyEditable() {
					delete(merged, r.Key())
				}
				if err := r.ValidateUpdate(merged); err != nil {
					return err
				}

				resp, err := r.UpdateOne(ctx, args[1], changes, nil)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), r, resp.Record())
			})
		},
	}
	data.register(cmd)

	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete RESOURCE KEY...",
		Short: "Delete records",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.resource(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(ctx, "delete", policy.Subject{Resource: r.Name()}); err != nil {
					return err
				}

				keys := make([]any, 0, len(args)-1)
				for _, k := range args[1:] {
					keys = append(keys, k)
				}
				if len(keys) == 1 {
					if _, err := r.DeleteOne(ctx, keys[0], nil); err != nil {
						return err
					}
				} else if _, err := r.DeleteMany(ctx, keys, nil); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s\n", len(keys), strings.ToLower(r.Label()))
				return nil
			})
		},
	}
}
