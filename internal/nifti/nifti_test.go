package nifti

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthImage(nx, ny, nz, nt int) *Image {
	img := &Image{
		Nx: nx, Ny: ny, Nz: nz, Nt: nt,
		Pixdim: [8]float32{0, 2, 2, 3, 2.5, 0, 0, 0},
		Data:   make([]float64, nx*ny*nz*nt),
	}
	for i := range img.Data {
		img.Data[i] = float64(i % 97)
	}
	return img
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"img.nii", "img.nii.gz"} {
		img := synthImage(4, 5, 6, 3)
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, Save(path, img))

		got, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, img.Nx, got.Nx)
		assert.Equal(t, img.Ny, got.Ny)
		assert.Equal(t, img.Nz, got.Nz)
		assert.Equal(t, img.Nt, got.Nt)
		assert.InDelta(t, 2.0, float64(got.Pixdim[1]), 1e-6)
		assert.InDelta(t, img.Data[0], got.Data[0], 1e-6)
		assert.InDelta(t, img.Data[len(img.Data)-1], got.Data[len(got.Data)-1], 1e-6)
	}
}

func TestSaveLoad_3D(t *testing.T) {
	t.Parallel()

	img := synthImage(3, 3, 3, 1)
	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	require.NoError(t, Save(path, img))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Nt)
	assert.Equal(t, 27, got.NumVoxels())
}

func TestAt_Indexing(t *testing.T) {
	t.Parallel()

	img := &Image{Nx: 2, Ny: 2, Nz: 2, Nt: 2, Data: make([]float64, 16)}
	img.Data[((1*2+1)*2+1)*2+1] = 7 // t=1, z=1, y=1, x=1
	assert.Equal(t, 7.0, img.At(1, 1, 1, 1))
	assert.Equal(t, 0.0, img.At(0, 1, 1, 1))
}

func TestVoxelVolume(t *testing.T) {
	t.Parallel()

	img := synthImage(2, 2, 2, 1)
	assert.InDelta(t, 12.0, img.VoxelVolume(), 1e-6) // 2 * 2 * 3
}

func TestLoad_NotNifti(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.nii")
	require.NoError(t, os.WriteFile(path, make([]byte, 400), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.nii"))
	require.Error(t, err)
}
