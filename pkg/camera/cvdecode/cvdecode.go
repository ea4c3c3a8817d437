// Package cvdecode decodes camera frames with OpenCV. It needs cgo and an
// OpenCV installation.
package cvdecode

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Decode decodes a JPEG (or any format OpenCV reads) into an image.
func Decode(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	return mat.ToImage()
}
