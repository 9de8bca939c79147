// Package exec runs the shell commands behind a workflow's run: steps,
// with output capture, environment merging, and opt-in retries.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"time"
)

// Result holds the output and exit status of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Options configures command execution.
type Options struct {
	// WorkingDir is the directory the command runs in ("" = inherit).
	WorkingDir string
	// Env is appended to the current process environment.
	Env map[string]string
	// MaxRetries re-runs the command on failure up to this many extra times.
	MaxRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) { o.WorkingDir = dir }
}

// WithEnv merges vars into the command environment.
func WithEnv(vars map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = map[string]string{}
		}
		for k, v := range vars {
			o.Env[k] = v
		}
	}
}

// WithRetries enables retries with the given delay between attempts.
func WithRetries(max int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = max
		o.RetryDelay = delay
	}
}

// Command runs a shell command line ("sh -c") and returns its captured
// output. A non-zero exit produces a non-nil error alongside the Result so
// callers can still inspect output.
func Command(ctx context.Context, line string, opts ...Option) (*Result, error) {
	options := &Options{RetryDelay: time.Second}
	for _, opt := range opts {
		opt(options)
	}

	var res *Result
	var err error
	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(options.RetryDelay):
			}
		}
		res, err = runOnce(ctx, line, options)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
	}
	return res, err
}

func runOnce(ctx context.Context, line string, options *Options) (*Result, error) {
	cmd := osexec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = options.WorkingDir
	cmd.Env = mergedEnv(options.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if runErr != nil {
		return res, fmt.Errorf("run %q: exit %d: %w", line, res.ExitCode, runErr)
	}
	return res, nil
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
