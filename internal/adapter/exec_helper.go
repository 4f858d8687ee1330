package adapter

import (
	"context"
	"time"

	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// runSpec is the argv (from an adapter's buildArgs) and optional stdin that
// runCLI executes.
type runSpec struct {
	Argv      []string
	StdinData []byte // non-empty when the provider takes its prompt on stdin
}

// runCLI executes spec via runner and returns a Response plus a typed error.
// The error is nil on a zero exit, a TimeoutError or CommandExecutionError
// when the run itself fails, and on a non-zero exit the typed error that
// classifying stderr (or stdout) with patterns yields. Any error is also
// stored in Response.Err.
func runCLI(ctx context.Context, runner subprocess.Runner, provider string, spec runSpec, timeout time.Duration, onLine func(string), patterns taxonomy.PatternSet) (Response, error) {
	opts := subprocess.Options{
		Timeout:      timeout,
		StdinData:    spec.StdinData,
		OnStdoutLine: onLine,
	}

	res, err := runner.Run(ctx, spec.Argv, opts)
	duration := res.Duration

	if err == context.DeadlineExceeded {
		terr := dispatcherr.NewTimeoutError(provider, timeout, err)
		return Response{Provider: provider, Duration: duration, Err: terr}, terr
	}
	if err != nil {
		cerr := dispatcherr.NewCommandExecutionError(provider, spec.Argv, err)
		return Response{Provider: provider, Duration: duration, Err: cerr}, cerr
	}

	resp := Response{
		Output:   string(res.Stdout),
		ExitCode: res.ExitCode,
		Duration: duration,
		Provider: provider,
	}

	if res.ExitCode != 0 {
		msg := string(res.Stderr)
		if msg == "" {
			msg = subprocess.TrimmedStderr(res.Stdout, 500)
		}
		cat := taxonomy.ClassifyOrdered(msg, patterns)
		typed := classifiedError(provider, cat, msg)
		resp.Err = typed
		return resp, typed
	}

	return resp, nil
}

// classifiedError maps a taxonomy.Category to one of the dispatcher's typed
// errors, the same mapping the conductor relies on to decide retry vs switch.
func classifiedError(provider string, cat taxonomy.Category, message string) error {
	switch cat {
	case taxonomy.RateLimited:
		return dispatcherr.NewRateLimitError(provider, time.Time{}, errString(message))
	case taxonomy.AuthExpired:
		return dispatcherr.NewAuthenticationError(provider, errString(message))
	case taxonomy.Timeout:
		return dispatcherr.NewTimeoutError(provider, 0, errString(message))
	default:
		return dispatcherr.NewProviderError(provider, "adapter.send", string(cat), errString(message))
	}
}

type plainError string

func (e plainError) Error() string { return string(e) }

func errString(s string) error {
	if s == "" {
		return nil
	}
	return plainError(s)
}
