package dot

import "fmt"

// hue is a red-to-green color ramp over a fixed number of elements.
// Index 0 is full red; the last index approaches full green. Used to
// paint a node's rendered children by their time rank.
type hue struct {
	elems int
}

func (h hue) color(idx int) string {
	if h.elems == 0 {
		return ""
	}
	val := int(float64(0xFF) * 2 / float64(h.elems) * float64(idx))
	r, g := 0, 0
	if val >= 0 && val < 0xFF {
		r = 0xFF - val
	}
	if val >= 0xFF {
		g = val - 0xFF
	}
	return fmt.Sprintf("#%02x%02x00", r, g)
}
