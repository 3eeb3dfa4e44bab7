package check

import (
	"context"
	"errors"
	"fmt"
)

// Helpers for broken invariants of the program itself.
// A malformed trace is an input problem and is reported as an error, never through this package.

func PanicIfNot(flag bool) {
	if !flag {
		panic("invariant violated")
	}
}

func PanicIfNotf(flag bool, format string, args ...any) {
	if !flag {
		panic(fmt.Sprintf(format, args...))
	}
}

func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// PanicIfNotCancelledErr ignores nil and context cancellation, which is how commands end on a signal.
func PanicIfNotCancelledErr(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
