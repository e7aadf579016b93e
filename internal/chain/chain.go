// Package chain models fallible steps as values: every step returns a Result,
// and a fallback chain is an ordered slice of named steps tried in turn.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Kind string

const (
	CredentialUnavailable Kind = "credential_unavailable"
	UpstreamRejected      Kind = "upstream_rejected"
	ResourceNotFound      Kind = "resource_not_found"
	AutomationTimeout     Kind = "automation_timeout"
	ChannelTimeout        Kind = "channel_timeout"
	Unexpected            Kind = "unexpected"
)

// Failure is the error half of a Result. Routine marks failures that are
// expected in normal operation and only change reporting verbosity.
type Failure struct {
	Kind    Kind
	Message string
	Routine bool
	Status  int // HTTP status when the failure came from an upstream response
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail builds a Failure from an error, keeping an existing Failure intact.
func Fail(kind Kind, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Failure{Kind: kind, Message: msg, Err: err}
}

// Failf builds a Failure from a format string.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind carried by err, or Unexpected.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Unexpected
}

// IsRoutine reports whether err is a Failure marked routine.
func IsRoutine(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Routine
}

// Result is Success(Value) when Failure is nil.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Err[T any](f *Failure) Result[T] {
	if f == nil {
		f = &Failure{Kind: Unexpected, Message: "unknown failure"}
	}
	return Result[T]{Failure: f}
}

func (r Result[T]) OK() bool { return r.Failure == nil }

// Unpack converts the Result to Go's (value, error) form.
func (r Result[T]) Unpack() (T, error) {
	if r.Failure != nil {
		return r.Value, r.Failure
	}
	return r.Value, nil
}

// Step is one named strategy in a fallback chain.
type Step[T any] struct {
	Name string
	Run  func(ctx context.Context) Result[T]
}

// Run tries steps in order and returns the first success. When every step
// fails the last failure is returned. Each fall-through is logged at debug.
func Run[T any](ctx context.Context, log *slog.Logger, steps ...Step[T]) Result[T] {
	var last *Failure
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return Err[T](Fail(Unexpected, err))
		}
		r := Guard(ctx, s)
		if r.OK() {
			if log != nil {
				log.Debug("step succeeded", "step", s.Name)
			}
			return r
		}
		last = r.Failure
		if log != nil {
			log.Debug("step failed, falling through", "step", s.Name, "kind", r.Failure.Kind, "error", r.Failure.Message)
		}
	}
	if last == nil {
		last = Failf(Unexpected, "no steps to run")
	}
	return Err[T](last)
}

// Guard runs a single step, converting a panic into an Unexpected failure.
func Guard[T any](ctx context.Context, s Step[T]) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Err[T](Failf(Unexpected, "%s panicked: %v", s.Name, p))
		}
	}()
	return s.Run(ctx)
}
