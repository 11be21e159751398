package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/finnctl/finnctl/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SafeGroup is an errgroup.Group whose goroutines turn panics into errors
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a SafeGroup whose context is cancelled when any goroutine fails
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: logger.OrNop(log),
	}, ctx
}

// Go runs fn in a new goroutine. A panic in fn is logged with its stack and returned as an error.
func (sg *SafeGroup) Go(name string, fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("goroutine", name),
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	})
}

// Wait blocks until every goroutine has returned and yields the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
