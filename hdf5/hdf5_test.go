package hdf5

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robert-malhotra/swiftserve/ndarray"
)

const gasRows = 32382

func getTestdataPath(filename string) string {
	return filepath.Join("..", "testdata", filename)
}

func skipIfNoTestdata(t *testing.T, filename string) string {
	path := getTestdataPath(filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("Test file %s not found. Run 'python3 testdata/generate.py' to create test files.", filename)
	}
	return path
}

func openSnapshot(t *testing.T, filename string, opts ...OpenOption) *File {
	t.Helper()
	f, err := Open(skipIfNoTestdata(t, filename), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestOpenSnapshot(t *testing.T) {
	path := skipIfNoTestdata(t, "snapshot.h5")

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Path() != path {
		t.Errorf("expected path %q, got %q", path, f.Path())
	}
	if f.Root().Path() != "/" {
		t.Errorf("expected root path '/', got %q", f.Root().Path())
	}

	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size < gasRows*3*8 {
		t.Errorf("file size %d smaller than the coordinates it holds", size)
	}
}

func TestOpenNotHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.h5")
	if err := os.WriteFile(path, []byte("This is not an HDF5 file"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrNotHDF5) {
		t.Errorf("expected ErrNotHDF5, got %v", err)
	}
}

func TestOpenNotExists(t *testing.T) {
	_, err := Open("/nonexistent/path/to/file.h5")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestOpenDirectory(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("expected error opening a directory")
	}
}

func TestOpenWithOptions(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5", WithSharedLock(), WithLockTimeout(time.Second), WithReadAhead())

	// A second shared lock on the same file does not conflict.
	g, err := Open(f.Path(), WithSharedLock())
	if err != nil {
		t.Fatalf("second shared Open failed: %v", err)
	}
	g.Close()

	ds, err := f.OpenDataset("PartType0/Masses")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	buf := make([]byte, 10*4)
	if _, err := ds.ReadRanges([]RowRange{{0, 10}}, nil, buf); err != nil {
		t.Fatalf("ReadRanges with read-ahead failed: %v", err)
	}
}

func TestDatasetGeometry(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	tests := []struct {
		path       string
		rows       uint64
		components uint64
		dtype      string
	}{
		{"PartType0/Coordinates", gasRows, 3, "<f8"},
		{"PartType0/Masses", gasRows, 1, "<f4"},
		{"PartType0/ParticleIDs", gasRows, 1, "<i8"},
		{"PartType0/SmoothingLengths", gasRows, 1, ">f4"},
		{"/PartType1/Velocities", 1000, 3, "<f4"},
		{"/PartType1/ParticleIDs", 1000, 1, "<u8"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ds, err := f.OpenDataset(tt.path)
			if err != nil {
				t.Fatalf("OpenDataset failed: %v", err)
			}
			if ds.Rows() != tt.rows {
				t.Errorf("Rows = %d, want %d", ds.Rows(), tt.rows)
			}
			if ds.Components() != tt.components {
				t.Errorf("Components = %d, want %d", ds.Components(), tt.components)
			}
			dt, err := ds.ElementType()
			if err != nil {
				t.Fatalf("ElementType failed: %v", err)
			}
			if dt.String() != tt.dtype {
				t.Errorf("ElementType = %s, want %s", dt, tt.dtype)
			}
		})
	}
}

func TestOpenMissing(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	if _, err := f.OpenDataset("PartType0/Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.OpenGroup("PartType9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.OpenDataset("PartType0"); !errors.Is(err, ErrNotDataset) {
		t.Errorf("expected ErrNotDataset, got %v", err)
	}
	if _, err := f.OpenGroup("PartType0/Masses"); !errors.Is(err, ErrNotGroup) {
		t.Errorf("expected ErrNotGroup, got %v", err)
	}
}

func TestReadArray(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	ds, err := f.OpenDataset("PartType0/Coordinates")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	arr, err := ds.ReadArray()
	if err != nil {
		t.Fatalf("ReadArray failed: %v", err)
	}
	if len(arr.Shape) != 2 || arr.Shape[0] != gasRows || arr.Shape[1] != 3 {
		t.Fatalf("shape = %v", arr.Shape)
	}
	data := arr.Data.([]float64)
	if data[0] != 0 || data[len(data)-1] != float64(gasRows*3-1) {
		t.Errorf("first/last = %v/%v", data[0], data[len(data)-1])
	}
}

func readRanges(t *testing.T, ds *Dataset, ranges []RowRange, cols []int) []byte {
	t.Helper()
	width := int(ds.Components())
	if cols != nil {
		width = len(cols)
	}
	rows := 0
	for _, r := range ranges {
		rows += int(r.End - r.Start)
	}
	buf := make([]byte, rows*width*ds.DtypeSize())
	n, err := ds.ReadRanges(ranges, cols, buf)
	if err != nil {
		t.Fatalf("ReadRanges failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("ReadRanges wrote %d bytes, want %d", n, len(buf))
	}
	return buf
}

func f64s(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func TestReadRanges(t *testing.T) {
	for _, name := range []string{"snapshot.h5", "snapshot_chunked.h5"} {
		t.Run(name, func(t *testing.T) {
			f := openSnapshot(t, name)
			ds, err := f.OpenDataset("PartType0/Coordinates")
			if err != nil {
				t.Fatalf("OpenDataset failed: %v", err)
			}

			// Out of order and overlapping ranges are gathered as given.
			got := f64s(readRanges(t, ds, []RowRange{{10, 12}, {0, 1}, {11, 12}}, nil))
			want := []float64{30, 31, 32, 33, 34, 35, 0, 1, 2, 33, 34, 35}
			if len(got) != len(want) {
				t.Fatalf("got %d values, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
				}
			}

			got = f64s(readRanges(t, ds, []RowRange{{gasRows - 2, gasRows}}, []int{2, 0}))
			last := float64(gasRows*3 - 1)
			want = []float64{last - 3, last - 5, last, last - 2}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("projected[%d] = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestReadRangesChunkBoundaries(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")
	ds, err := f.OpenDataset("PartType1/Velocities")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}

	// Rows 95..205 span three chunks of 100 rows.
	buf := readRanges(t, ds, []RowRange{{95, 205}}, []int{1})
	for i := 0; i < 110; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if want := float32((95+i)*3 + 1); v != want {
			t.Fatalf("row %d = %v, want %v", 95+i, v, want)
		}
	}
}

func TestReadRangesErrors(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")
	ds, err := f.OpenDataset("PartType0/Coordinates")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}

	buf := make([]byte, 64)
	if _, err := ds.ReadRanges([]RowRange{{gasRows - 1, gasRows + 1}}, nil, buf); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for rows past the end, got %v", err)
	}
	if _, err := ds.ReadRanges([]RowRange{{5, 4}}, nil, buf); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for inverted range, got %v", err)
	}
	if _, err := ds.ReadRanges([]RowRange{{0, 1}}, []int{3}, buf); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for column 3, got %v", err)
	}
	if _, err := ds.ReadRanges([]RowRange{{0, 10}}, nil, buf); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}

	n, err := ds.ReadRanges([]RowRange{{3, 3}}, nil, nil)
	if err != nil || n != 0 {
		t.Errorf("empty range: n=%d err=%v", n, err)
	}
}

func TestBigEndianRangesKeepFileOrder(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")
	ds, err := f.OpenDataset("PartType0/SmoothingLengths")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	whole, err := ds.ReadArray()
	if err != nil {
		t.Fatalf("ReadArray failed: %v", err)
	}

	buf := readRanges(t, ds, []RowRange{{7, 9}}, nil)
	arr, err := ndarray.FromRaw(ndarray.Float32.WithOrder(ndarray.OrderBig), []int{2}, buf)
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}
	if arr.At(0) != whole.At(7) || arr.At(1) != whole.At(8) {
		t.Errorf("got %v %v, want %v %v", arr.At(0), arr.At(1), whole.At(7), whole.At(8))
	}
}

func TestOperationsAfterClose(t *testing.T) {
	path := skipIfNoTestdata(t, "snapshot.h5")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ds, err := f.OpenDataset("PartType0/Masses")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	if _, err := f.OpenDataset("PartType0/Masses"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := ds.ReadRanges([]RowRange{{0, 1}}, nil, make([]byte, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
