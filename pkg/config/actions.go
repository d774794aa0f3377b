package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/resource"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// ResultGlobal is the global an action script binds its result to.
const ResultGlobal = "result"

// Action scripts see these globals:
//
//	resource  dict with the name, path, key and label of the resource
//	args      list of the arguments the action was called with
//	record    the first argument when it is a record, else None
//	key       the key of record, else None
//
// and may call get_one(key), get_many(params={}), create_one(data),
// update_one(key, data) and delete_one(key), which delegate to the resource
// and return the response data.
func (se *StarlarkEvaluator) action(name string, def ActionDefinition) (resource.Action, error) {
	timeout := se.timeout
	if def.Timeout != "" {
		d, err := time.ParseDuration(def.Timeout)
		if err != nil {
			return resource.Action{}, fmt.Errorf("action %s: invalid timeout: %w", name, err)
		}
		timeout = d
	}

	act := resource.Action{
		Label: def.Label,
		Run: func(ctx context.Context, r *resource.Resource, args ...any) (any, error) {
			input, err := scriptInput(r, args)
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", name, err)
			}

			result, err := se.evaluate(ctx, timeout, def.Script, input, resourceBuiltins(r))
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", name, err)
			}

			telemetry.FromContext(ctx).
				WithResource(r.Name(), r.Path()).
				WithField("action", name).
				WithField("duration", result.ExecutionTime).
				Debug("action script finished")

			return result.Output[ResultGlobal], nil
		},
	}

	if def.Visible != "" {
		if _, err := syntax.ParseExpr("visible.star", def.Visible, 0); err != nil {
			return resource.Action{}, fmt.Errorf("action %s: invalid visibility expression: %w", name, err)
		}
		expr := def.Visible
		act.IsVisible = func(r *resource.Resource, args ...any) bool {
			input, err := scriptInput(r, args)
			if err != nil {
				return false
			}
			ok, err := se.Truth(expr, input)
			return err == nil && ok
		}
	}
	return act, nil
}

func scriptInput(r *resource.Resource, args []any) (map[string]any, error) {
	list := make([]any, len(args))
	for i, a := range args {
		v, err := toStarlarkValue(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		list[i] = v
	}

	input := map[string]any{
		"resource": map[string]any{
			"name":  r.Name(),
			"path":  r.Path(),
			"key":   r.Key(),
			"label": r.Label(),
		},
		"args":   list,
		"record": nil,
		"key":    nil,
	}
	if len(args) > 0 {
		if rec, ok := args[0].(engine.Record); ok && rec != nil {
			input["record"] = rec
			input["key"] = rec[r.Key()]
		}
	}
	return input, nil
}

func resourceBuiltins(r *resource.Resource) starlark.StringDict {
	return starlark.StringDict{
		"get_one": starlark.NewBuiltin("get_one", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
				return nil, err
			}
			k, err := fromStarlarkValue(key)
			if err != nil {
				return nil, err
			}
			return responseData(r.GetOne(threadContext(thread), k, nil))
		}),
		"get_many": starlark.NewBuiltin("get_many", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var params *starlark.Dict
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "params?", &params); err != nil {
				return nil, err
			}
			p, err := dictToMap(params)
			if err != nil {
				return nil, err
			}
			return responseData(r.GetMany(threadContext(thread), engine.Params(p)))
		}),
		"create_one": starlark.NewBuiltin("create_one", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var data *starlark.Dict
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data); err != nil {
				return nil, err
			}
			d, err := dictToMap(data)
			if err != nil {
				return nil, err
			}
			return responseData(r.CreateOne(threadContext(thread), engine.Record(d), nil))
		}),
		"update_one": starlark.NewBuiltin("update_one", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key starlark.Value
			var data *starlark.Dict
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "data", &data); err != nil {
				return nil, err
			}
			k, err := fromStarlarkValue(key)
			if err != nil {
				return nil, err
			}
			d, err := dictToMap(data)
			if err != nil {
				return nil, err
			}
			return responseData(r.UpdateOne(threadContext(thread), k, engine.Record(d), nil))
		}),
		"delete_one": starlark.NewBuiltin("delete_one", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
				return nil, err
			}
			k, err := fromStarlarkValue(key)
			if err != nil {
				return nil, err
			}
			return responseData(r.DeleteOne(threadContext(thread), k, nil))
		}),
	}
}

func dictToMap(d *starlark.Dict) (map[string]any, error) {
	if d == nil {
		return map[string]any{}, nil
	}
	v, err := fromStarlarkValue(d)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func responseData(resp *engine.Response, err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return starlark.None, nil
	}
	return toStarlarkValue(resp.Data)
}
