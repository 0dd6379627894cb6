package imaging

import (
	"fmt"
	"strings"

	"github.com/nfnt/resize"
)

// DefaultFilter is the resampling filter used when none is configured.
const DefaultFilter = "bicubic"

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"lanczos3": resize.Lanczos3,
}

// ParseFilter maps a filter name to its interpolation function.
func ParseFilter(name string) (resize.InterpolationFunction, error) {
	if name == "" {
		name = DefaultFilter
	}
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown resampling filter %q", name)
	}
	return f, nil
}
