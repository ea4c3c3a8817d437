package teleop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-teach/internal/log"
)

// Loop runs an Operator at a fixed frequency until the context is cancelled.
type Loop struct {
	op      *Operator
	source  ControllerSource
	timer   *FrequencyTimer
	logger  *slog.Logger
	closers []io.Closer
}

// NewLoop creates a control loop. closers are released when Run returns, in
// the order given.
func NewLoop(op *Operator, source ControllerSource, timer *FrequencyTimer, logger *slog.Logger, closers ...io.Closer) *Loop {
	return &Loop{
		op:      op,
		source:  source,
		timer:   timer,
		logger:  log.OrDefault(logger),
		closers: closers,
	}
}

// Run drives the Operator until ctx is cancelled or a fatal error occurs.
//
// Cancellation is only observed between iterations and while polling or
// sleeping; a tick that has started always completes its request/reply.
// Run returns nil on cancellation. Held channels are closed on every exit path.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, l.release())
	}()

	l.logger.Info("teleoperator started", "hz", 1/l.timer.Period().Seconds())

	for {
		if ctx.Err() != nil {
			l.logger.Info("stopping the teleoperator")
			return nil
		}

		l.timer.StartLoop()

		var sample *ControllerSample
		s, err := l.source.Poll(ctx)
		switch {
		case err == nil:
			sample = &s
		case errors.Is(err, ErrNoSample):
		case ctx.Err() != nil:
			l.logger.Info("stopping the teleoperator")
			return nil
		default:
			return fmt.Errorf("poll controller: %w", err)
		}

		if _, err := l.op.Step(context.WithoutCancel(ctx), sample); err != nil {
			return err
		}

		if err := l.timer.EndLoop(ctx); err != nil {
			l.logger.Info("stopping the teleoperator")
			return nil
		}
	}
}

func (l *Loop) release() error {
	var errs error
	for _, c := range l.closers {
		errs = multierr.Append(errs, c.Close())
	}
	if errs != nil {
		return fmt.Errorf("release channels: %w", errs)
	}
	return nil
}
