package debrismap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridWindows(t *testing.T) {
	type tc struct {
		scene, tile HeightWidth
		offset      int
		windows     []Window
	}
	cases := []tc{
		{HeightWidth{512, 512}, HeightWidth{480, 480}, 64, []Window{
			{Row: 0, Col: 0, Height: 512, Width: 512},
			{Row: 0, Col: 416, Height: 512, Width: 96},
			{Row: 416, Col: 0, Height: 96, Width: 512},
			{Row: 416, Col: 416, Height: 96, Width: 96},
		}},
		{HeightWidth{100, 200}, HeightWidth{480, 480}, 64, []Window{
			{Row: 0, Col: 0, Height: 100, Width: 200},
		}},
		{HeightWidth{480, 960}, HeightWidth{480, 480}, 0, []Window{
			{Row: 0, Col: 0, Height: 480, Width: 480},
			{Row: 0, Col: 480, Height: 480, Width: 480},
		}},
		{HeightWidth{30, 25}, HeightWidth{10, 10}, 2, []Window{
			{Row: 0, Col: 0, Height: 12, Width: 12},
			{Row: 0, Col: 8, Height: 12, Width: 14},
			{Row: 0, Col: 18, Height: 12, Width: 7},
			{Row: 8, Col: 0, Height: 14, Width: 12},
			{Row: 8, Col: 8, Height: 14, Width: 14},
			{Row: 8, Col: 18, Height: 14, Width: 7},
			{Row: 18, Col: 0, Height: 12, Width: 12},
			{Row: 18, Col: 8, Height: 12, Width: 14},
			{Row: 18, Col: 18, Height: 12, Width: 7},
		}},
	}
	for _, c := range cases {
		g, err := NewGrid(c.scene, c.tile, c.offset)
		require.NoError(t, err)
		assert.Equal(t, len(c.windows), g.Len())
		if diff := cmp.Diff(c.windows, g.Windows()); diff != "" {
			t.Errorf("windows of %v/%v/%d mismatch (-want +got):\n%s", c.scene, c.tile, c.offset, diff)
		}
	}
}

func TestGridCoverage(t *testing.T) {
	testfunc := func(scene, tile HeightWidth, offset int) {
		t.Helper()
		g, err := NewGrid(scene, tile, offset)
		require.NoError(t, err)
		hits := make([]int, scene.Height*scene.Width)
		for _, w := range g.Windows() {
			assert.True(t, w.Row >= 0 && w.Col >= 0 && w.Row+w.Height <= scene.Height && w.Col+w.Width <= scene.Width,
				"window %+v outside %v", w, scene)
			assert.LessOrEqual(t, w.Height, tile.Height+2*offset)
			assert.LessOrEqual(t, w.Width, tile.Width+2*offset)
			for r := w.Row; r < w.Row+w.Height; r++ {
				for c := w.Col; c < w.Col+w.Width; c++ {
					hits[r*scene.Width+c]++
				}
			}
		}
		for i, h := range hits {
			if h == 0 {
				t.Fatalf("pixel %d,%d not covered", i/scene.Width, i%scene.Width)
			}
		}
	}
	testfunc(HeightWidth{1, 1}, HeightWidth{4, 4}, 1)
	testfunc(HeightWidth{97, 131}, HeightWidth{16, 20}, 3)
	testfunc(HeightWidth{64, 64}, HeightWidth{8, 8}, 0)
	testfunc(HeightWidth{50, 7}, HeightWidth{7, 7}, 10)
}

func TestGridErrors(t *testing.T) {
	var ierr ErrInvalidOption
	_, err := NewGrid(HeightWidth{0, 10}, HeightWidth{4, 4}, 1)
	assert.True(t, errors.As(err, &ierr))
	_, err = NewGrid(HeightWidth{10, 10}, HeightWidth{4, 0}, 1)
	assert.True(t, errors.As(err, &ierr))
	_, err = NewGrid(HeightWidth{10, 10}, HeightWidth{4, 4}, -1)
	assert.True(t, errors.As(err, &ierr))
}
