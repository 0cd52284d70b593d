// Package nifti reads and writes single-file NIfTI-1 images, plain or
// gzip-compressed. It covers exactly the subset the quality metrics need:
// the standard 348-byte header, the common scalar datatypes, and voxel data
// scaled to float64.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Supported on-disk datatypes.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

// header is the on-disk NIfTI-1 header layout, 348 bytes little-endian.
type header struct {
	SizeofHdr      int32
	DataType       [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	Datatype       int16
	Bitpix         int16
	SliceStart     int16
	Pixdim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XyztUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	Toffset        float32
	Glmax          int32
	Glmin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QformCode      int16
	SformCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QoffsetX       float32
	QoffsetY       float32
	QoffsetZ       float32
	SrowX          [4]float32
	SrowY          [4]float32
	SrowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

// Image is a decoded NIfTI volume. Data holds voxels in x-fastest order,
// already scaled by the header's slope and intercept.
type Image struct {
	Nx, Ny, Nz, Nt int
	Pixdim         [8]float32
	Datatype       int16
	Descrip        string
	Data           []float64
}

// At returns the voxel at (x, y, z) of volume t.
func (img *Image) At(x, y, z, t int) float64 {
	return img.Data[((t*img.Nz+z)*img.Ny+y)*img.Nx+x]
}

// NumVoxels returns the voxel count of one volume.
func (img *Image) NumVoxels() int {
	return img.Nx * img.Ny * img.Nz
}

// VoxelVolume returns the physical volume of one voxel in cubic millimetres.
func (img *Image) VoxelVolume() float64 {
	return float64(img.Pixdim[1]) * float64(img.Pixdim[2]) * float64(img.Pixdim[3])
}

// Volume returns the data slice of volume t.
func (img *Image) Volume(t int) []float64 {
	n := img.NumVoxels()
	return img.Data[t*n : (t+1)*n]
}

// Load reads a .nii or .nii.gz image from disk.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	img, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func decode(r io.Reader) (*Image, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.SizeofHdr != 348 {
		return nil, fmt.Errorf("not a NIfTI-1 file (header size %d)", hdr.SizeofHdr)
	}
	if hdr.Magic != [4]byte{'n', '+', '1', 0} {
		return nil, fmt.Errorf("unsupported magic %q, only single-file NIfTI-1 is handled", hdr.Magic[:3])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 || ndim > 4 {
		return nil, fmt.Errorf("unsupported dimensionality %d", ndim)
	}
	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	nt := 1
	if ndim == 4 {
		nt = int(hdr.Dim[4])
	}
	if nx <= 0 || ny <= 0 || nz <= 0 || nt <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%dx%d", nx, ny, nz, nt)
	}

	// Skip extensions between the header and the voxel data.
	if skip := int64(hdr.VoxOffset) - 348; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("skipping header extensions: %w", err)
		}
	}

	n := nx * ny * nz * nt
	raw := make([]byte, n*int(hdr.Bitpix)/8)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading voxel data: %w", err)
	}

	data, err := scaleVoxels(raw, hdr.Datatype, n, hdr.SclSlope, hdr.SclInter)
	if err != nil {
		return nil, err
	}

	return &Image{
		Nx: nx, Ny: ny, Nz: nz, Nt: nt,
		Pixdim:   hdr.Pixdim,
		Datatype: hdr.Datatype,
		Descrip:  cstr(hdr.Descrip[:]),
		Data:     data,
	}, nil
}

func scaleVoxels(raw []byte, datatype int16, n int, slope, inter float32) ([]float64, error) {
	s, b := float64(slope), float64(inter)
	if s == 0 {
		s = 1
	}

	data := make([]float64, n)
	le := binary.LittleEndian
	switch datatype {
	case DTUint8:
		for i := 0; i < n; i++ {
			data[i] = float64(raw[i])*s + b
		}
	case DTInt16:
		for i := 0; i < n; i++ {
			data[i] = float64(int16(le.Uint16(raw[i*2:])))*s + b
		}
	case DTInt32:
		for i := 0; i < n; i++ {
			data[i] = float64(int32(le.Uint32(raw[i*4:])))*s + b
		}
	case DTFloat32:
		for i := 0; i < n; i++ {
			data[i] = float64(math.Float32frombits(le.Uint32(raw[i*4:])))*s + b
		}
	case DTFloat64:
		for i := 0; i < n; i++ {
			data[i] = math.Float64frombits(le.Uint64(raw[i*8:]))*s + b
		}
	default:
		return nil, fmt.Errorf("unsupported datatype %d", datatype)
	}
	return data, nil
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Save writes the image as float32 NIfTI-1, gzip-compressed when the path
// ends in .gz.
func Save(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := encode(w, img); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Close()
}

func encode(w io.Writer, img *Image) error {
	ndim := int16(3)
	if img.Nt > 1 {
		ndim = 4
	}
	hdr := header{
		SizeofHdr: 348,
		Dim:       [8]int16{ndim, int16(img.Nx), int16(img.Ny), int16(img.Nz), int16(img.Nt), 1, 1, 1},
		Datatype:  DTFloat32,
		Bitpix:    32,
		Pixdim:    img.Pixdim,
		VoxOffset: 352,
		SclSlope:  1,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(hdr.Descrip[:], img.Descrip)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	// Four pad bytes between header and data, no extensions.
	if _, err := w.Write(make([]byte, 4)); err != nil {
		return err
	}

	buf := make([]byte, len(img.Data)*4)
	for i, v := range img.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	_, err := w.Write(buf)
	return err
}
