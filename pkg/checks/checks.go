// Package checks defines the validation check contract and the built-in
// checks the resolver facade uses. A check receives a Context exposing the
// working environment and the side-effecting probe primitives (linking and
// running real commands); it reports a Result rather than an error so the
// resolver can always downgrade a failing or panicking check to a validation
// failure.
package checks

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/confix/confix/pkg/environ"
)

// Result is the outcome of one check. A check fails when OK is false or
// Reason is non-empty; a passing check leaves Reason empty.
type Result struct {
	OK     bool
	Reason string
}

// Failed reports whether the result counts as a failure.
func (r Result) Failed() bool {
	return !r.OK || r.Reason != ""
}

// Pass returns a passing result.
func Pass() Result {
	return Result{OK: true}
}

// Fail returns a generic failure.
func Fail() Result {
	return Result{OK: false}
}

// Failf returns a failure with a formatted reason.
func Failf(format string, args ...any) Result {
	return Result{OK: false, Reason: fmt.Sprintf(format, args...)}
}

// Func is a check body. It must be synchronous and non-reentrant; the
// resolver runs one check at a time and recovers panics into failures.
type Func func(*Context) Result

// Check pairs a check body with a display name. Checks are compared by
// pointer identity: the resolver remembers executed checks by the *Check it
// was handed, so the same logical check must be represented by one value.
type Check struct {
	Name string
	Fn   Func
}

// New creates a named check.
func New(name string, fn Func) *Check {
	return &Check{Name: name, Fn: fn}
}

// Context is the capability surface handed to checks: the environment under
// validation plus the probe primitives. The resolver swaps the environment
// in before every validation pass.
type Context struct {
	env     *environ.Environment
	workDir string
	log     zerolog.Logger
	seq     int

	// lastOutput is the artifact produced by the most recent TryLink.
	lastOutput string
}

// NewContext creates a check context writing probe artifacts under workDir.
func NewContext(workDir string, logger zerolog.Logger) *Context {
	return &Context{
		workDir: workDir,
		log:     logger.With().Str("component", "checks").Logger(),
	}
}

// SetEnv installs the environment snapshot checks observe. The resolver
// calls this before running checks against a freshly applied environment.
func (c *Context) SetEnv(env *environ.Environment) {
	c.env = env
}

// Env returns the environment under validation.
func (c *Context) Env() *environ.Environment {
	return c.env
}

// LastOutput returns the path of the artifact produced by the most recent
// successful TryLink, or an empty string.
func (c *Context) LastOutput() string {
	return c.lastOutput
}

// TryLink writes source to a scratch file with the given extension and asks
// the environment's linker driver to produce an executable from it. It
// returns the output path and whether linking succeeded. The link is a real
// side effect: it invokes the external linker the environment names.
func (c *Context) TryLink(source, ext string) (string, bool) {
	driver := c.env.String("LINK")
	if driver == "" {
		driver = c.env.String("CC")
	}
	if driver == "" {
		c.log.Debug().Msg("No linker driver in environment")
		return "", false
	}

	c.seq++
	srcPath := filepath.Join(c.workDir, fmt.Sprintf("conftest_%d%s", c.seq, ext))
	outPath := filepath.Join(c.workDir, fmt.Sprintf("conftest_%d.out", c.seq))

	if err := os.WriteFile(srcPath, []byte(source), 0644); err != nil {
		c.log.Debug().Err(err).Msg("Failed to write probe source")
		return "", false
	}

	args := append([]string(nil), c.env.List("LINKFLAGS")...)
	args = append(args, "-o", outPath, srcPath)

	if !c.RunCommand(driver, args...) {
		return "", false
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", false
	}

	c.lastOutput = outPath
	return outPath, true
}

// RunCommand runs an external command with the environment's PATH and
// reports whether it exited successfully.
func (c *Context) RunCommand(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Dir = c.workDir
	if path := c.env.String("ENV"); path != "" {
		cmd.Env = append(os.Environ(), "PATH="+path)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		c.log.Debug().
			Err(err).
			Str("command", name).
			Str("output", strings.TrimSpace(string(output))).
			Msg("Probe command failed")
		return false
	}
	return true
}

// LookProgram searches the environment's PATH directories for an executable
// file named name and returns its full path.
func (c *Context) LookProgram(name string) (string, bool) {
	path := c.env.String("ENV")
	if path == "" {
		path = c.env.String("PATH")
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 != 0 {
			return candidate, true
		}
	}
	return "", false
}
