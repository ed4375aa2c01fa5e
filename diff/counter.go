// Package diff turns a per-pixel difference mask into discrete, clickable
// clusters. A cluster is a maximal 8-connected group of differing pixels;
// its key is the order in which its first pixel is reached during a
// left-to-right, top-to-bottom scan, so keys are stable for a given mask.
package diff

import "errors"

// ErrInvalidDimensions is returned when the mask dimensions make no sense.
var ErrInvalidDimensions = errors.New("diff: invalid mask dimensions")

// Position is a pixel coordinate inside the mask.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cluster is one connected group of differing pixels. Key doubles as the
// difference id reported to players.
type Cluster struct {
	Key    int        `json:"key"`
	Pixels []Position `json:"pixels"`
}

// Counter scans a flat row-major mask for connected clusters. A nonzero
// byte means "this pixel differs".
type Counter struct {
	mask  []byte
	width int
}

// NewCounter validates the dimensions and returns a Counter. A width of
// zero is only legal for an empty mask. A width larger than the mask is
// tolerated: the mask is treated as a single partial row, matching how the
// scan indexes pixels.
func NewCounter(mask []byte, width int) (*Counter, error) {
	if width < 0 {
		return nil, ErrInvalidDimensions
	}
	if width == 0 && len(mask) > 0 {
		return nil, ErrInvalidDimensions
	}
	return &Counter{mask: mask, width: width}, nil
}

// CountAllClusters returns the number of distinct clusters in the mask.
func (c *Counter) CountAllClusters() int {
	return len(c.FindClusters())
}

// FindClusters labels every cluster in raster-scan order. Diagonal
// neighbours belong to the same cluster.
func (c *Counter) FindClusters() []Cluster {
	if len(c.mask) == 0 || c.width == 0 {
		return nil
	}

	visited := make([]bool, len(c.mask))
	clusters := []Cluster{}

	for seed := range c.mask {
		if visited[seed] || c.mask[seed] == 0 {
			continue
		}
		clusters = append(clusters, Cluster{
			Key:    len(clusters),
			Pixels: c.flood(seed, visited),
		})
	}
	return clusters
}

// flood collects every differing pixel reachable from seed, using an
// explicit stack so deep clusters cannot blow the call stack.
func (c *Counter) flood(seed int, visited []bool) []Position {
	stack := []int{seed}
	visited[seed] = true
	pixels := []Position{}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pixels = append(pixels, Position{X: idx % c.width, Y: idx / c.width})

		for _, n := range c.neighbours(idx) {
			if !visited[n] && c.mask[n] != 0 {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	return pixels
}

// neighbours returns the in-bounds indices of the 8 cells around idx.
// Horizontal moves must stay on the same row, so wrap-around across row
// edges is filtered by comparing the neighbour's row to the expected one.
func (c *Counter) neighbours(idx int) []int {
	x := idx % c.width
	y := idx / c.width

	out := make([]int, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= c.width || ny < 0 {
				continue
			}
			n := ny*c.width + nx
			if n >= len(c.mask) {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}
