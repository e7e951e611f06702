package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/units"
)

func snapshotPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join("..", "..", "testdata", "snapshot.h5")
	if _, err := os.Stat(p); os.IsNotExist(err) {
		t.Skip("test file snapshot.h5 not found. Run 'python3 testdata/generate.py'")
	}
	return p
}

func TestBuild(t *testing.T) {
	path := snapshotPath(t)
	o, err := Build(context.Background(), path, nil, hdf5.WithSharedLock())
	require.NoError(t, err)

	h, ok := o.Get("handle")
	require.True(t, ok)
	require.Equal(t, KindNull, h.Kind(), "handle must be scrubbed")

	uv, ok := o.Get("units")
	require.True(t, ok)
	require.Equal(t, KindUnits, uv.Kind())
	u := uv.Interface().(*units.Map)
	require.Nil(t, u.Handle)
	require.Equal(t, path, u.Filename)

	header, ok := o.Get("header")
	require.True(t, ok)
	require.Equal(t, KindObject, header.Kind())
	box, _ := header.Interface().(*Object).Get("BoxSize")
	require.Equal(t, KindArray, box.Kind())
	code, _ := header.Interface().(*Object).Get("Code")
	require.Equal(t, KindBytes, code.Kind())
	names, _ := header.Interface().(*Object).Get("PartTypeNames")
	require.Equal(t, KindList, names.Kind())

	for _, key := range []string{"cosmology", "code", "parameters", "policy", "gravity_scheme", "hydro_scheme", "subgrid_scheme", "internal_code_units"} {
		v, ok := o.Get(key)
		require.True(t, ok, key)
		require.Equal(t, KindObject, v.Kind(), key)
	}

	tv, _ := o.Get("time")
	q := tv.Interface().(units.Quantity)
	require.Equal(t, 0.014035469190861152, q.Value)
	require.True(t, strings.HasSuffix(q.Unit, "*Gyr"), q.Unit)

	n, _ := o.Get("n_gas")
	require.Equal(t, int64(32382), n.Interface())
	n, _ = o.Get("n_dark_matter")
	require.Equal(t, int64(1000), n.Interface())
	present, _ := o.Get("present_particle_types")
	require.Equal(t, []Value{Int32(0), Int32(1)}, present.Interface())
	dim, _ := o.Get("dimension")
	require.Equal(t, KindInt32, dim.Kind())

	date, _ := o.Get("snapshot_date")
	require.Equal(t, KindTime, date.Kind())
	require.True(t, time.Date(2021, 3, 3, 10, 32, 4, 0, time.UTC).Equal(date.Interface().(time.Time)))

	got, err := Serialize(o)
	require.NoError(t, err)
	require.Equal(t, path, got["filename"])
	require.Nil(t, got["handle"])
	require.Equal(t, "2021-03-03T10:32:04", got["snapshot_date"])
	require.Equal(t, "SWIFT", got["code_name"])
	require.Equal(t, "swiftserve fixture", got["run_name"])
	require.Equal(t, []any{float64(100), float64(100), float64(100)}, got["boxsize"])
	require.Equal(t, 6.0, got["redshift"])
	require.Contains(t, got["mass_table"], "dark_matter=0.5")
	require.Equal(t, "Metadata class for PartType0 (gas), 32382 particles",
		got["particle_type_metadata"].(map[string]any)["gas"])
	require.Equal(t, "1 K", got["units"].(map[string]any)["temperature"])

	blob, err := o.MarshalBinary()
	require.NoError(t, err)
	back := NewObject()
	require.NoError(t, back.UnmarshalBinary(blob))
	again, err := Serialize(back)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestBuildKeepsCallerUnits(t *testing.T) {
	path := snapshotPath(t)
	u, err := units.FromFile(path)
	require.NoError(t, err)
	u.Roles["time"] = units.Quantity{Value: 1, Unit: "Gyr"}
	sig := u.Signature()

	o, err := Build(context.Background(), path, u)
	require.NoError(t, err)
	require.Nil(t, u.Handle)
	require.Equal(t, sig, u.Signature())

	tv, _ := o.Get("time")
	require.Equal(t, "0.014035469190861152 Gyr", tv.Interface().(units.Quantity).String())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), filepath.Join(t.TempDir(), "gone.hdf5"), nil)
	require.True(t, apierr.Has(err, apierr.DatasetPathInvalid))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, "whatever.hdf5", nil)
	require.ErrorIs(t, err, context.Canceled)

	attrs := filepath.Join("..", "..", "testdata", "attributes.h5")
	if _, err := os.Stat(attrs); err == nil {
		_, err = Build(context.Background(), attrs, nil)
		require.True(t, apierr.Has(err, apierr.UnitConversion))
	}
}
