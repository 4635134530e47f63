// Package preprocess converts raw uploaded image bytes into the fixed-shape
// normalized tensor the model was trained on. The training pipeline uses the
// same code path, so the scaling convention can never drift between the two.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// ImageSize is the model's trained input resolution. Changing it requires
// retraining; every artifact bundle assumes 224.
const ImageSize = 224

// Channels is fixed at 3 (RGB). Alpha is dropped, grayscale is expanded.
const Channels = 3

// ErrDecode reports bytes that are not a decodable JPEG/PNG/GIF image.
var ErrDecode = errors.New("image decode failed")

// Tensor is a 4-dimensional float32 array in NHWC layout with values in
// [0,1]. Shape is always (1, ImageSize, ImageSize, Channels).
type Tensor struct {
	Data  []float32
	Shape [4]int
}

// At returns the value at (y, x, c) of the single batched image.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Shape[2]+x)*t.Shape[3]+c]
}

// Preprocess decodes raw image bytes, forces RGB, resizes to
// ImageSize×ImageSize and scales channel values to [0,1].
//
// The resize stretches the source to a square without preserving aspect
// ratio, matching the transform the model was trained on. Lanczos3
// resampling is used; any change here must be paired with retraining.
func Preprocess(raw []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resized := resize.Resize(ImageSize, ImageSize, img, resize.Lanczos3)

	t := &Tensor{
		Data:  make([]float32, ImageSize*ImageSize*Channels),
		Shape: [4]int{1, ImageSize, ImageSize, Channels},
	}

	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// RGBA returns 16-bit channels; alpha is discarded.
			r, g, b, _ := resized.At(x, y).RGBA()
			t.Data[i] = float32(r) / 65535.0
			t.Data[i+1] = float32(g) / 65535.0
			t.Data[i+2] = float32(b) / 65535.0
			i += Channels
		}
	}

	return t, nil
}
