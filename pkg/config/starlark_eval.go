package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// ScriptEvaluator runs manifest Starlark scripts, such as the settings
// script that computes pre-resolution variables. Scripts are sandboxed:
// they see only the input values handed to Evaluate plus the Starlark
// universe, and they are cancelled when the timeout elapses. Checks
// that run against the live environment mid-resolution have their own
// evaluation path in pkg/checks.
type ScriptEvaluator struct {
	timeout time.Duration
}

// NewScriptEvaluator creates a script evaluator. A zero timeout means
// the 30 second default.
func NewScriptEvaluator(timeout time.Duration) *ScriptEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ScriptEvaluator{timeout: timeout}
}

// Evaluate runs a script with the given input values predeclared and
// returns its exported globals. Globals whose names start with an
// underscore stay private to the script.
func (se *ScriptEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	start := time.Now()

	thread := &starlark.Thread{
		Name: "confix",
		Print: func(_ *starlark.Thread, _ string) {
			// Scripts have no output channel.
		},
	}

	// Interrupt the interpreter on timeout or caller cancellation.
	// Cancel is safe to call from other goroutines and makes the
	// running program fail with an EvalError.
	timer := time.AfterFunc(se.timeout, func() {
		thread.Cancel(fmt.Sprintf("script exceeded %v timeout", se.timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel("evaluation cancelled")
	})
	defer stop()

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	opts := &syntax.FileOptions{
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
	globals, err := starlark.ExecFileOptions(opts, thread, "manifest.star", script, predeclared)
	elapsed := time.Since(start)
	if err != nil {
		return &StarlarkResult{
			ExecutionTime: elapsed,
			Error:         err.Error(),
		}, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{}, len(globals))
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		// Helper functions are script-internal, not outputs.
		if _, isFn := val.(*starlark.Function); isFn {
			continue
		}
		if _, isBuiltin := val.(*starlark.Builtin); isBuiltin {
			continue
		}
		gv, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = gv
	}

	return &StarlarkResult{
		Output:        output,
		ExecutionTime: elapsed,
	}, nil
}

// toStarlarkValue converts a Go value to its Starlark equivalent.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back to a Go value.
// Tuples come back as lists.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
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
	case *starlark.List:
		return fromStarlarkSequence(val.Len(), val.Index)
	case starlark.Tuple:
		return fromStarlarkSequence(val.Len(), val.Index)
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
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

func fromStarlarkSequence(n int, index func(int) starlark.Value) ([]interface{}, error) {
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		item, err := fromStarlarkValue(index(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}
