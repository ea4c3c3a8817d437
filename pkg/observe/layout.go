package observe

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/teslashibe/go-teach/pkg/robot"
)

// Channel names.
const (
	ChannelFeatures       = "features"
	ChannelProprioceptive = "proprioceptive"
)

// PixelsChannel returns the channel name of camera i.
func PixelsChannel(i int) string { return fmt.Sprintf("pixels%d", i) }

// SensorChannel returns the channel name of tactile sensor j.
func SensorChannel(j int) string { return fmt.Sprintf("sensor%d", j) }

// SensorDiffsChannel returns the delta channel name of tactile sensor j.
func SensorDiffsChannel(j int) string { return fmt.Sprintf("sensor%d_diffs", j) }

// ChannelSpec is the fixed shape and element type of one record channel.
type ChannelSpec struct {
	Name  string
	Shape tensor.Shape
	Dtype tensor.Dtype
}

// Layout is the ordered set of channels an Env produces.
type Layout []ChannelSpec

// NewLayout builds the channel layout for cfg.
func NewLayout(cfg Config) Layout {
	l := Layout{
		{Name: ChannelFeatures, Shape: tensor.Shape{robot.FeatureDim}, Dtype: tensor.Float64},
		{Name: ChannelProprioceptive, Shape: tensor.Shape{robot.FeatureDim}, Dtype: tensor.Float64},
	}
	for i := 0; i < cfg.Cameras; i++ {
		l = append(l, ChannelSpec{
			Name:  PixelsChannel(i),
			Shape: tensor.Shape{cfg.Height, cfg.Width, 3},
			Dtype: tensor.Uint8,
		})
	}
	if cfg.Tactile {
		for j := 0; j < cfg.Sensors; j++ {
			l = append(l,
				ChannelSpec{Name: SensorChannel(j), Shape: tensor.Shape{cfg.SensorDim}, Dtype: tensor.Float64},
				ChannelSpec{Name: SensorDiffsChannel(j), Shape: tensor.Shape{cfg.SensorDim}, Dtype: tensor.Float64},
			)
		}
	}
	return l
}

// Names returns the channel names in layout order.
func (l Layout) Names() []string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.Name
	}
	return names
}

// Lookup finds a channel by name.
func (l Layout) Lookup(name string) (ChannelSpec, bool) {
	for _, c := range l {
		if c.Name == name {
			return c, true
		}
	}
	return ChannelSpec{}, false
}

func (c ChannelSpec) zero() *tensor.Dense {
	return tensor.New(tensor.Of(c.Dtype), tensor.WithShape(c.Shape.Clone()...))
}
