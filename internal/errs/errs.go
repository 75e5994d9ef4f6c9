// Package errs defines the failure kinds a compilation run can end with.
//
// Every error returned by the engine wraps exactly one of the sentinels below,
// so callers can branch with errors.Is regardless of how much context was
// appended on the way up.
package errs

import (
	"errors"
	"fmt"

	"github.com/ansel1/merry/v2"
)

var (
	// ErrConfig reports an invalid duration, volume or path supplied by the caller.
	ErrConfig = merry.Sentinel("invalid configuration")
	// ErrInventory reports that no usable source clip was found.
	ErrInventory = merry.Sentinel("no usable clips")
	// ErrPlanning reports a timeline that cannot hold a single scene.
	ErrPlanning = merry.Sentinel("cannot plan timeline")
	// ErrBuild reports a scene whose command could not be built.
	ErrBuild = merry.Sentinel("cannot build scene command")
	// ErrProcess reports an external tool failure or an empty output.
	ErrProcess = merry.Sentinel("media process failed")
	// ErrCancelled marks a run stopped by the caller. It is not a failure.
	ErrCancelled = merry.Sentinel("cancelled")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrCancelled, "cancelled"},
	{ErrConfig, "config"},
	{ErrInventory, "inventory"},
	{ErrPlanning, "planning"},
	{ErrBuild, "build"},
	{ErrProcess, "process"},
}

// New wraps kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return merry.Wrap(kind, merry.AppendMessage(fmt.Sprintf(format, args...)))
}

// Wrap wraps kind with a formatted message and records cause.
// A nil cause behaves like New.
func Wrap(kind, cause error, format string, args ...any) error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return merry.Wrap(kind,
		merry.AppendMessage(fmt.Sprintf(format, args...)),
		merry.WithCause(cause),
	)
}

// Kind returns a short name for the sentinel err wraps, or "unknown".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}

// IsCancelled reports whether err marks a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
