package observe

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Render concatenates the most recent frames horizontally, each resized to
// width x height.
func (e *Env) Render(width, height int) (*image.NRGBA, error) {
	if e.frames == nil {
		return nil, ErrNotReset
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid render size %dx%d", width, height)
	}

	out := imaging.New(width*len(e.frames), height, color.Black)
	for i, f := range e.frames {
		out = imaging.Paste(out, resize(f, width, height), image.Pt(i*width, 0))
	}
	return out, nil
}

func (e *Env) blankFrames() []image.Image {
	frames := make([]image.Image, e.cfg.Cameras)
	for i := range frames {
		frames[i] = imaging.New(e.cfg.Width, e.cfg.Height, color.Black)
	}
	return frames
}

func resize(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}

// toHWC drops the alpha channel and returns height x width x 3 bytes.
func toHWC(img *image.NRGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy()*3)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}
