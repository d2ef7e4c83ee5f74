package finalizer

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Finalizer collects resources for later cleanup.
type Finalizer struct {
	resources []io.Closer
}

// NewFinalizer returns a new Finalizer.
func NewFinalizer() *Finalizer {
	return &Finalizer{}
}

// Add one or more Closers to the finalizer.
func (f *Finalizer) Add(cs ...io.Closer) {
	f.resources = append(f.resources, cs...)
}

// Cleanup closes all resources in reverse order, combining any close
// errors with err.
func (f *Finalizer) Cleanup(err error) error {
	var errs *multierror.Error
	errs = multierror.Append(errs, err)
	for i := len(f.resources) - 1; i >= 0; i-- {
		errs = multierror.Append(errs, f.resources[i].Close())
	}
	return errs.ErrorOrNil()
}

// Cleanupf is like Cleanup, wrapping err in format first.
func (f *Finalizer) Cleanupf(format string, err error) error {
	return f.Cleanup(fmt.Errorf(format, err))
}

// NewContextCloser wraps a context cancel func as an io.Closer.
func NewContextCloser(cancel context.CancelFunc) io.Closer {
	return &contextCloser{cancel: cancel}
}

type contextCloser struct {
	cancel context.CancelFunc
}

func (cc *contextCloser) Close() error {
	cc.cancel()
	return nil
}
