package swift

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/locator"
	"github.com/robert-malhotra/swiftserve/internal/metadata"
	"github.com/robert-malhotra/swiftserve/internal/metrics"
	"github.com/robert-malhotra/swiftserve/internal/query"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// fakeField serves little-endian float32 rows from memory.
type fakeField struct {
	info query.FieldInfo
	data []float32
}

func (f *fakeField) Info() query.FieldInfo { return f.info }

func (f *fakeField) ReadRanges(ranges []query.Range, columns []int, dst []byte) (int, error) {
	comps := f.info.Components()
	var vals []float32
	for _, r := range ranges {
		for row := r.Start; row < r.End; row++ {
			src := f.data[int(row)*comps : int(row+1)*comps]
			if columns == nil {
				vals = append(vals, src...)
				continue
			}
			for _, c := range columns {
				vals = append(vals, src[c])
			}
		}
	}
	raw, err := (&ndarray.Array{Shape: []int{len(vals)}, DType: ndarray.Float32, Data: vals}).Bytes()
	if err != nil {
		return 0, err
	}
	return copy(dst, raw), nil
}

type fakeOpener struct {
	fields map[string]*fakeField
	opens  int
}

func (o *fakeOpener) Open(string) (query.Source, error) {
	o.opens++
	return fakeSource{o}, nil
}

type fakeSource struct{ o *fakeOpener }

func (fakeSource) Close() error { return nil }

func (s fakeSource) Field(name string) (query.RangeReader, error) {
	f, ok := s.o.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", query.ErrNoField, name)
	}
	return f, nil
}

type fixture struct {
	svc     *Service
	opener  *fakeOpener
	metrics *metrics.Metrics
	path    string
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot_0000.hdf5")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	masses := make([]float32, 10)
	coords := make([]float32, 20)
	for i := range masses {
		masses[i] = float32(i) + 0.5
		coords[2*i] = float32(i)
		coords[2*i+1] = float32(-i)
	}
	opener := &fakeOpener{fields: map[string]*fakeField{
		"PartType0/Masses":      {info: query.FieldInfo{DType: ndarray.Float32, Dims: []uint64{10}}, data: masses},
		"PartType0/Coordinates": {info: query.FieldInfo{DType: ndarray.Float32, Dims: []uint64{10, 2}}, data: coords},
	}}

	logs := &bytes.Buffer{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := New(
		locator.NewTable(map[string]string{"sample": path}),
		query.NewEngine(opener, nil),
		nil,
		m,
		log.NewLogfmtLogger(logs),
		opts,
	)
	return &fixture{svc: svc, opener: opener, metrics: m, path: path, logs: logs}
}

func sample() locator.Reference { return locator.Reference{Alias: "sample"} }

func TestRetrieveUnmasked(t *testing.T) {
	fx := newFixture(t, Options{})
	out, err := fx.svc.RetrieveUnmasked(context.Background(), Request{Ref: sample(), Field: "PartType0/Masses"})
	require.NoError(t, err)
	require.Equal(t, "<f4", out.DType)

	vals := out.Array.([]any)
	require.Len(t, vals, 10)
	require.Equal(t, float32(0.5), vals[0])
	require.Equal(t, float32(9.5), vals[9])

	require.Equal(t, float64(10), testutil.ToFloat64(fx.metrics.RowsGathered))
	require.Equal(t, float64(40), testutil.ToFloat64(fx.metrics.BytesRead))
	require.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.Requests.WithLabelValues(OpUnmasked, metrics.OutcomeOK)))
}

func TestRetrieveUnmaskedColumn(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	full, err := fx.svc.RetrieveUnmasked(ctx, Request{Ref: sample(), Field: "PartType0/Coordinates"})
	require.NoError(t, err)
	rows := full.Array.([]any)
	require.Len(t, rows, 10)

	for col := 0; col < 2; col++ {
		out, err := fx.svc.RetrieveUnmasked(ctx, Request{Ref: sample(), Field: "PartType0/Coordinates", Columns: query.Column(col)})
		require.NoError(t, err)
		vals := out.Array.([]any)
		require.Len(t, vals, 10)
		for i, row := range rows {
			require.Equal(t, row.([]any)[col], vals[i])
		}
	}
}

func TestRetrieveMasked(t *testing.T) {
	fx := newFixture(t, Options{MaxMaskSize: 100})
	out, err := fx.svc.RetrieveMasked(context.Background(), MaskedRequest{
		Request:  Request{Ref: sample(), Field: "PartType0/Masses"},
		Mask:     "[[0, 3], [7, 9]]",
		MaskSize: 5,
	})
	require.NoError(t, err)
	require.Equal(t, []any{float32(0.5), float32(1.5), float32(2.5), float32(7.5), float32(8.5)}, out.Array)
	require.Equal(t, float64(5), testutil.ToFloat64(fx.metrics.RowsGathered))
}

func TestRetrieveMaskedLimit(t *testing.T) {
	fx := newFixture(t, Options{MaxMaskSize: 4})
	_, err := fx.svc.RetrieveMasked(context.Background(), MaskedRequest{
		Request:  Request{Ref: sample(), Field: "PartType0/Masses"},
		Mask:     "[[0, 5]]",
		MaskSize: 5,
	})
	require.True(t, apierr.Has(err, apierr.MaskOutOfBounds), "got %v", err)
	require.Zero(t, fx.opener.opens)
	require.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.Requests.WithLabelValues(OpMasked, "MaskOutOfBounds")))
}

func TestRetrieveMaskedFieldNotFound(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.svc.RetrieveMasked(context.Background(), MaskedRequest{
		Request:  Request{Ref: sample(), Field: "PartType0/Nope"},
		Mask:     "[[0, 3]]",
		MaskSize: 3,
	})
	require.True(t, apierr.Has(err, apierr.FieldNotFound), "got %v", err)
	require.Contains(t, err.Error(), "PartType0/Nope")
	require.Contains(t, err.Error(), fx.path)
	require.Zero(t, testutil.ToFloat64(fx.metrics.RowsGathered))
}

func TestRetrieveErrors(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing.hdf5")

	tests := []struct {
		name string
		call func() error
		kind apierr.Kind
	}{
		{
			name: "unknown alias",
			call: func() error {
				_, err := fx.svc.RetrieveUnmasked(ctx, Request{Ref: locator.Reference{Alias: "nope"}, Field: "PartType0/Masses"})
				return err
			},
			kind: apierr.DatasetNotFound,
		},
		{
			name: "missing path",
			call: func() error {
				_, err := fx.svc.RetrieveUnmasked(ctx, Request{Ref: locator.Reference{Path: missing}, Field: "PartType0/Masses"})
				return err
			},
			kind: apierr.DatasetPathInvalid,
		},
		{
			name: "empty mask",
			call: func() error {
				_, err := fx.svc.RetrieveMasked(ctx, MaskedRequest{Request: Request{Ref: sample(), Field: "PartType0/Masses"}, MaskSize: 3})
				return err
			},
			kind: apierr.MaskRequired,
		},
		{
			name: "column out of range",
			call: func() error {
				_, err := fx.svc.RetrieveUnmasked(ctx, Request{Ref: sample(), Field: "PartType0/Coordinates", Columns: query.Column(2)})
				return err
			},
			kind: apierr.ColumnOutOfRange,
		},
		{
			name: "units of missing file",
			call: func() error {
				_, err := fx.svc.RetrieveUnitsDict(ctx, locator.Reference{Path: missing})
				return err
			},
			kind: apierr.DatasetPathInvalid,
		},
		{
			name: "metadata of unknown alias",
			call: func() error {
				_, err := fx.svc.RetrieveMetadata(ctx, locator.Reference{Alias: "nope"}, nil)
				return err
			},
			kind: apierr.DatasetNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			require.Equal(t, tt.kind, apierr.KindOf(err), "got %v", err)
		})
	}
}

func TestRetrieveFilePath(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	p, err := fx.svc.RetrieveFilePath(ctx, sample())
	require.NoError(t, err)
	require.Equal(t, fx.path, p)

	p, err = fx.svc.RetrieveFilePath(ctx, locator.Reference{Path: "/no/such/dir/../snap.hdf5"})
	require.NoError(t, err)
	require.Equal(t, "/no/such/snap.hdf5", p)

	_, err = fx.svc.RetrieveFilePath(ctx, locator.Reference{Alias: "nope"})
	require.True(t, apierr.Has(err, apierr.DatasetNotFound))
}

func TestRequestIDLogged(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := WithRequestID(context.Background(), "req-42")

	_, err := fx.svc.RetrieveFilePath(ctx, sample())
	require.NoError(t, err)
	require.Contains(t, fx.logs.String(), "request_id=req-42")
	require.Contains(t, fx.logs.String(), "op=filepath")

	_, err = fx.svc.RetrieveFilePath(ctx, locator.Reference{Alias: "nope"})
	require.Error(t, err)
	require.Contains(t, fx.logs.String(), "kind=DatasetNotFound")
}

func TestRequestIDGenerated(t *testing.T) {
	a := RequestID(context.Background())
	b := RequestID(context.Background())
	require.Len(t, a, 36)
	require.NotEqual(t, a, b)
}

func snapshotPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join("..", "testdata", "snapshot.h5")
	if _, err := os.Stat(p); os.IsNotExist(err) {
		t.Skip("test file snapshot.h5 not found. Run 'python3 testdata/generate.py'")
	}
	return p
}

func newHDF5Service(t *testing.T, path string) (*Service, *metrics.Metrics) {
	t.Helper()
	opts := []hdf5.OpenOption{hdf5.WithSharedLock()}
	cache, err := metadata.NewCache(4, func(ctx context.Context, p string, u *units.Map) (*metadata.Object, error) {
		return metadata.Build(ctx, p, u, opts...)
	})
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := New(
		locator.NewTable(map[string]string{"sample_file": path}),
		query.NewEngine(query.HDF5Opener{SharedLock: true}, nil),
		cache,
		m,
		nil,
		Options{OpenOptions: opts},
	)
	return svc, m
}

func TestHDF5RetrieveMasked(t *testing.T) {
	svc, _ := newHDF5Service(t, snapshotPath(t))
	ctx := context.Background()
	ref := locator.Reference{Alias: "sample_file"}

	full, err := svc.RetrieveUnmasked(ctx, Request{Ref: ref, Field: "PartType0/Masses"})
	require.NoError(t, err)
	all := full.Array.([]any)

	out, err := svc.RetrieveMasked(ctx, MaskedRequest{
		Request:  Request{Ref: ref, Field: "PartType0/Masses"},
		Mask:     "[[0, 334]]",
		MaskSize: 334,
	})
	require.NoError(t, err)
	vals := out.Array.([]any)
	require.Len(t, vals, 334)
	require.Equal(t, all[0], vals[0])
	require.Equal(t, all[333], vals[333])
}

func TestHDF5RetrieveMetadata(t *testing.T) {
	svc, m := newHDF5Service(t, snapshotPath(t))
	ctx := context.Background()
	ref := locator.Reference{Alias: "sample_file"}

	blob, err := svc.RetrieveMetadata(ctx, ref, nil)
	require.NoError(t, err)
	var obj metadata.Object
	require.NoError(t, obj.UnmarshalBinary(blob))
	_, ok := obj.Get("boxsize")
	require.True(t, ok)
	h, ok := obj.Get("handle")
	require.True(t, ok)
	require.Equal(t, metadata.KindNull, h.Kind())

	_, err = svc.RetrieveMetadata(ctx, ref, nil)
	require.NoError(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))

	dict, err := svc.RetrieveMetadataDict(ctx, ref, nil)
	require.NoError(t, err)
	require.Contains(t, dict, "redshift")
	require.Nil(t, dict["handle"])
	require.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestHDF5RetrieveUnitsDict(t *testing.T) {
	svc, _ := newHDF5Service(t, snapshotPath(t))
	out, err := svc.RetrieveUnitsDict(context.Background(), locator.Reference{Alias: "sample_file"})
	require.NoError(t, err)
	require.Contains(t, out, "filename")
	require.Contains(t, out, "units")

	require.Contains(t, out["length"], "Mpc")
	base := out["units"].(map[string]any)
	require.Contains(t, base[units.AttrLength], "cm")
}

func TestHDF5RetrieveMaskBoxsize(t *testing.T) {
	svc, _ := newHDF5Service(t, snapshotPath(t))
	out, err := svc.RetrieveMaskBoxsize(context.Background(), locator.Reference{Alias: "sample_file"})
	require.NoError(t, err)
	require.Equal(t, "<f8", out.DType)
	require.Equal(t, []any{100.0, 100.0, 100.0}, out.Array)
	require.Contains(t, out.Units, "Mpc")
}
