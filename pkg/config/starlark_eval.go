package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// DefaultScriptTimeout bounds action scripts without their own timeout.
const DefaultScriptTimeout = 30 * time.Second

// maxVisibilitySteps bounds visibility expressions, which run without a
// context.
const maxVisibilitySteps = 100_000

// StarlarkEvaluator executes Starlark scripts safely.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultScriptTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes script with input bound as globals and returns its
// public globals. builtins are predeclared next to the input; the script
// is cancelled when ctx is done or the timeout elapses.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]any, builtins starlark.StringDict) (*ScriptResult, error) {
	return se.evaluate(ctx, se.timeout, script, input, builtins)
}

func (se *StarlarkEvaluator) evaluate(ctx context.Context, timeout time.Duration, script string, input map[string]any, builtins starlark.StringDict) (*ScriptResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	thread := newThread("action")
	thread.SetLocal(contextKey, evalCtx)

	predeclared, err := predeclare(input, builtins)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		globals starlark.StringDict
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		globals, err := starlark.ExecFile(thread, "action.star", script, predeclared)
		done <- outcome{globals, err}
	}()

	var out outcome
	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		out = <-done
		if out.err == nil {
			break
		}
		err := fmt.Errorf("starlark execution cancelled: %w", evalCtx.Err())
		return &ScriptResult{ExecutionTime: time.Since(startTime), Error: err.Error()}, err
	case out = <-done:
	}

	if out.err != nil {
		err := fmt.Errorf("starlark execution failed: %w", out.err)
		return &ScriptResult{ExecutionTime: time.Since(startTime), Error: err.Error()}, err
	}

	output := make(map[string]any)
	for name, val := range out.globals {
		// Skip internal variables and functions.
		if name[0] == '_' {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &ScriptResult{
		Output:        output,
		ExecutionTime: time.Since(startTime),
	}, nil
}

// Truth evaluates a single expression with input bound and reports its
// Starlark truth value.
func (se *StarlarkEvaluator) Truth(expr string, input map[string]any) (bool, error) {
	thread := newThread("visibility")
	thread.SetMaxExecutionSteps(maxVisibilitySteps)

	predeclared, err := predeclare(input, nil)
	if err != nil {
		return false, err
	}
	val, err := starlark.Eval(thread, "visible.star", expr, predeclared)
	if err != nil {
		return false, fmt.Errorf("starlark evaluation failed: %w", err)
	}
	return bool(val.Truth()), nil
}

const contextKey = "context"

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print for security
		},
	}
}

func predeclare(input map[string]any, builtins starlark.StringDict) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for name, fn := range builtins {
		predeclared[name] = fn
	}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}
	return predeclared, nil
}

// threadContext returns the context the running script was started with.
func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// toStarlarkValue converts a Go value to a Starlark value. Maps become
// dicts with sorted keys.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		// Whole numbers decoded from JSON stay integers in scripts.
		if val == float64(int64(val)) {
			return starlark.MakeInt64(int64(val)), nil
		}
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case []engine.Record:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(map[string]any(item))
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case engine.Params:
		return toStarlarkValue(map[string]any(val))
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Tuple:
		return fromSequence(val)
	case *starlark.List:
		return fromSequence(val)
	case *starlark.Dict:
		dict := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromSequence(seq starlark.Indexable) ([]any, error) {
	list := make([]any, seq.Len())
	for i := range list {
		item, err := fromStarlarkValue(seq.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
