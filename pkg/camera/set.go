package camera

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/transport"
)

// Set holds one Subscriber per configured camera.
type Set struct {
	cfg  Config
	subs []*Subscriber
}

// Open subscribes to every camera topic on the relay at relayURL.
func Open(ctx context.Context, relayURL string, cfg Config, opts transport.Options, decode Decoder) (*Set, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validation failed: %v", errs)
	}
	if decode == nil {
		return nil, fmt.Errorf("no frame decoder")
	}

	s := &Set{cfg: cfg}
	for i := 0; i < cfg.Count; i++ {
		sub, err := transport.Subscribe(ctx, transport.SubURL(relayURL, cfg.Topic(i)), opts)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("camera %d: %w", i, err), s.Close())
		}
		s.subs = append(s.subs, NewSubscriber(i, cfg.Format, sub, decode))
	}
	return s, nil
}

// Sources returns the subscribers in camera order.
func (s *Set) Sources() []observe.CameraSource {
	out := make([]observe.CameraSource, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub
	}
	return out
}

// Close closes every subscription.
func (s *Set) Close() error {
	var err error
	for _, sub := range s.subs {
		err = multierr.Append(err, sub.Close())
	}
	s.subs = nil
	return err
}
