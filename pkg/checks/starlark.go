package checks

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/confix/confix/pkg/environ"
)

// Starlark wraps a user script as a check. The script must define a function
// check(env) receiving a dict of the environment's variables plus a
// "TOOLS" list of applied providers. It returns True to pass, False to fail,
// or a string giving the failure reason (empty string passes).
//
// Scripts run on the calling goroutine with a hard timeout enforced through
// thread cancellation; print output is discarded.
func Starlark(name, script string, timeout time.Duration) *Check {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return New(name, func(ctx *Context) Result {
		return runStarlark(name, script, ctx.Env(), timeout)
	})
}

func runStarlark(name, script string, env *environ.Environment, timeout time.Duration) Result {
	thread := &starlark.Thread{
		Name:  "confix-check",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	timer := time.AfterFunc(timeout, func() {
		thread.Cancel(fmt.Sprintf("check script timeout after %v", timeout))
	})
	defer timer.Stop()

	opts := &syntax.FileOptions{
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
	globals, err := starlark.ExecFileOptions(opts, thread, name+".star", script, nil)
	if err != nil {
		return Failf("check script failed: %v", err)
	}

	fn, ok := globals["check"]
	if !ok {
		return Failf("check script does not define check(env)")
	}

	envDict, err := environToStarlark(env)
	if err != nil {
		return Failf("failed to convert environment: %v", err)
	}

	value, err := starlark.Call(thread, fn, starlark.Tuple{envDict}, nil)
	if err != nil {
		return Failf("check script failed: %v", err)
	}

	switch v := value.(type) {
	case starlark.Bool:
		if bool(v) {
			return Pass()
		}
		return Fail()
	case starlark.String:
		if string(v) == "" {
			return Pass()
		}
		return Failf("%s", string(v))
	case starlark.NoneType:
		return Pass()
	default:
		return Failf("check script returned %s, want bool or string", value.Type())
	}
}

// environToStarlark converts the environment to a Starlark dict. Scalars
// become strings, lists become lists of strings.
func environToStarlark(env *environ.Environment) (*starlark.Dict, error) {
	dict := starlark.NewDict(env.Len() + 1)
	for _, key := range env.Keys() {
		raw, _ := env.Lookup(key)
		var value starlark.Value
		switch v := raw.(type) {
		case []string:
			items := make([]starlark.Value, len(v))
			for i, item := range v {
				items[i] = starlark.String(item)
			}
			value = starlark.NewList(items)
		default:
			value = starlark.String(fmt.Sprint(v))
		}
		if err := dict.SetKey(starlark.String(key), value); err != nil {
			return nil, err
		}
	}

	providers := env.Providers()
	items := make([]starlark.Value, len(providers))
	for i, p := range providers {
		items[i] = starlark.String(p)
	}
	if err := dict.SetKey(starlark.String("TOOLS"), starlark.NewList(items)); err != nil {
		return nil, err
	}
	return dict, nil
}
