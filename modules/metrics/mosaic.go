package metrics

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/nifti"
)

// mosaic renders the axial slices of the underlay into one grayscale grid
// image, tinting voxels covered by the optional overlay mask for visual
// inspection of mask fit.
func (m *Module) mosaic(ctx context.Context, t *engine.Task) (engine.Outputs, error) {
	underlay, err := loadInput(t, "underlay")
	if err != nil {
		return nil, err
	}

	var overlay *nifti.Image
	if _, ok := t.Input("overlay"); ok {
		overlay, err = loadInput(t, "overlay")
		if err != nil {
			return nil, err
		}
		if overlay.Nx != underlay.Nx || overlay.Ny != underlay.Ny || overlay.Nz != underlay.Nz {
			return nil, fmt.Errorf("%s: overlay grid does not match underlay", t.ID)
		}
	}

	// Display range from the robust intensity window.
	lo, hi := robustWindow(underlay.Volume(0))

	cols := int(math.Ceil(math.Sqrt(float64(underlay.Nz))))
	rows := (underlay.Nz + cols - 1) / cols
	img := image.NewRGBA(image.Rect(0, 0, cols*underlay.Nx, rows*underlay.Ny))

	for z := 0; z < underlay.Nz; z++ {
		ox := (z % cols) * underlay.Nx
		oy := (z / cols) * underlay.Ny
		for y := 0; y < underlay.Ny; y++ {
			for x := 0; x < underlay.Nx; x++ {
				v := underlay.At(x, y, z, 0)
				g := uint8(math.Round(255 * clamp((v-lo)/(hi-lo))))
				c := color.RGBA{R: g, G: g, B: g, A: 255}
				if overlay != nil && overlay.At(x, y, z, 0) > 0 {
					c.R = uint8(math.Min(255, float64(g)+80))
				}
				// Flip y so the image shows anterior up.
				img.Set(ox+x, oy+underlay.Ny-1-y, c)
			}
		}
	}

	dir, err := m.nodeDir(t)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "mosaic.png")
	f, err := os.Create(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	return engine.Outputs{"out_file": cty.StringVal(out)}, nil
}

// robustWindow returns the 2nd and 98th percentile of the data, falling
// back to a unit window when degenerate.
func robustWindow(data []float64) (lo, hi float64) {
	s := append([]float64(nil), data...)
	sort.Float64s(s)
	lo = percentile(s, 2)
	hi = percentile(s, 98)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// percentile interpolates within an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p / 100 * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
