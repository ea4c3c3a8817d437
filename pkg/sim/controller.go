package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/protocol"
)

// Controller scripts a right-hand VR controller: it engages on the first
// sample, then traces a circle in the controller's x-z plane, opening the
// gripper for the first half of each lap and closing it for the second.
type Controller struct {
	radius float64
	lap    time.Duration
	clock  clock.Clock

	start time.Time
}

// NewController creates a Controller tracing a circle of radius metres once
// per lap. A nil clk uses the wall clock.
func NewController(radius float64, lap time.Duration, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{radius: radius, lap: lap, clock: clk}
}

// Next returns the controller state for the current time.
func (c *Controller) Next() protocol.ControllerStateData {
	now := c.clock.Now()
	first := c.start.IsZero()
	if first {
		c.start = now
	}

	phase := math.Mod(now.Sub(c.start).Seconds()/c.lap.Seconds(), 1)
	theta := 2 * math.Pi * phase
	pose := geometry.Translate(c.radius*math.Cos(theta)-c.radius, 0, c.radius*math.Sin(theta))

	d := protocol.ControllerStateData{
		RightAffine: pose.Flat(),
		RightA:      first,
		CreatedAt:   protocol.UnixSeconds(now),
	}
	if phase < 0.5 {
		d.RightHandTrigger = 1
	} else {
		d.RightIndexTrigger = 1
	}
	return d
}

// Stream publishes controller states to out at hz until ctx is done.
func (c *Controller) Stream(ctx context.Context, hz float64, out Sender) error {
	ticker := c.clock.Ticker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg, err := protocol.NewControllerStateMessage(c.Next())
			if err != nil {
				return err
			}
			if err := out.Send(ctx, msg); err != nil {
				return fmt.Errorf("publish controller: %w", err)
			}
		}
	}
}
