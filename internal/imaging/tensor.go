package imaging

import "fmt"

// Shape describes an NHWC tensor: batch, height, width, channels.
type Shape [4]int

// Channels is the number of color channels every tensor carries.
const Channels = 3

// NewShape returns the batch-of-one NHWC shape for an image of the given size.
func NewShape(height, width int) Shape {
	return Shape{1, height, width, Channels}
}

// Elements returns the number of values a tensor of this shape holds.
func (s Shape) Elements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	for _, d := range s {
		if d < 1 {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s[0], s[1], s[2], s[3])
}

// Tensor is a normalized image laid out in NHWC order. Every value is in [0, 1].
type Tensor struct {
	Data  []float32
	Shape Shape
}

// At returns the value at batch n, row y, column x, channel c.
func (t *Tensor) At(n, y, x, c int) float32 {
	h, w, ch := t.Shape[1], t.Shape[2], t.Shape[3]
	return t.Data[((n*h+y)*w+x)*ch+c]
}
