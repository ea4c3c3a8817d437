package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/protocol"
	"github.com/teslashibe/go-teach/pkg/transport"
)

// Decoder turns an encoded frame into an image.
type Decoder func(data []byte) (image.Image, error)

// Subscriber receives one camera's frames.
type Subscriber struct {
	index  int
	format string
	sub    *transport.Subscriber
	decode Decoder
}

// NewSubscriber wraps a relay subscription for camera index.
func NewSubscriber(index int, format string, sub *transport.Subscriber, decode Decoder) *Subscriber {
	return &Subscriber{index: index, format: format, sub: sub, decode: decode}
}

// RecvFrame blocks until the next frame arrives and decodes it.
func (s *Subscriber) RecvFrame(ctx context.Context) (image.Image, observe.FrameMeta, error) {
	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			return nil, observe.FrameMeta{}, err
		}
		if msg.Type != protocol.TypeFrame {
			continue
		}

		frame, err := msg.GetFrameData()
		if err != nil {
			return nil, observe.FrameMeta{}, err
		}
		if frame.Format != s.format {
			return nil, observe.FrameMeta{}, fmt.Errorf("camera %d: unsupported format %q", s.index, frame.Format)
		}
		raw, err := frame.DecodeFrameData()
		if err != nil {
			return nil, observe.FrameMeta{}, fmt.Errorf("camera %d: %w", s.index, err)
		}
		img, err := s.decode(raw)
		if err != nil {
			return nil, observe.FrameMeta{}, fmt.Errorf("camera %d: decode: %w", s.index, err)
		}

		return img, observe.FrameMeta{
			Camera:    s.index,
			FrameID:   frame.FrameID,
			Timestamp: protocol.FromUnixSeconds(frame.Timestamp),
		}, nil
	}
}

// Close closes the subscription.
func (s *Subscriber) Close() error { return s.sub.Close() }
