package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// headerGroups lists the attribute-only groups copied into the metadata
// object, with the key each is stored under.
var headerGroups = []struct{ group, key string }{
	{"Header", "header"},
	{"Cosmology", "cosmology"},
	{"Code", "code"},
	{"Parameters", "parameters"},
	{"Policy", "policy"},
	{"GravityScheme", "gravity_scheme"},
	{"HydroScheme", "hydro_scheme"},
	{"SubgridScheme", "subgrid_scheme"},
	{"Units", "unit_attributes"},
	{"InternalCodeUnits", "internal_code_units"},
}

// snapshotDateLayout is the layout of the "Snapshot date" header attribute.
const snapshotDateLayout = "15:04:05 2006-01-02 MST"

// Build reads the metadata object of the snapshot at path. u is the unit
// system to attach; a nil u is read from the file. u itself is not
// modified.
//
// While the object is built it holds the open file under "handle" and
// "units.handle". Build scrubs both before returning, so the result is
// always encodable.
func Build(ctx context.Context, path string, u *units.Map, opts ...hdf5.OpenOption) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := hdf5.Open(path, opts...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apierr.NewDatasetPathInvalid(path, err)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if u == nil {
		if u, err = units.Read(f); err != nil {
			return nil, err
		}
	}
	bound := u.Clone()
	bound.Handle = f
	if bound.Filename == "" {
		bound.Filename = path
	}

	o := NewObject()
	o.Set("filename", String(path))
	o.Set("handle", Handle(f))
	o.Set("units", Units(bound))

	var header *hdf5.Group
	for _, hg := range headerGroups {
		g, err := f.OpenGroup(hg.group)
		if errors.Is(err, hdf5.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", hg.group, err)
		}
		attrs, err := groupAttrs(g)
		if err != nil {
			return nil, err
		}
		o.Set(hg.key, ObjectValue(attrs))
		if hg.group == "Header" {
			header = g
		}
	}
	if header != nil {
		if err := derive(o, header, bound); err != nil {
			return nil, err
		}
	}

	Scrub(o)
	return o, nil
}

// groupAttrs reads every attribute of g into an object.
func groupAttrs(g *hdf5.Group) (*Object, error) {
	o := NewObject()
	for _, name := range g.Attrs() {
		v, err := attrValue(g.Attr(name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdf5.JoinAttrPath(g.Path(), name), err)
		}
		o.Set(name, v)
	}
	return o, nil
}

// attrValue classifies an attribute. Fixed-width strings stay byte strings,
// numeric arrays keep their on-disk dtype, and numeric scalars become
// scalar values.
func attrValue(a *hdf5.Attribute) (Value, error) {
	arr, err := a.Array()
	if err != nil {
		raw, err := a.Value()
		if err != nil {
			return Value{}, err
		}
		return Classify(raw)
	}

	if arr.DType.Class == ndarray.ClassBytes {
		strs := arr.Data.([][]byte)
		if a.IsScalar() && len(strs) == 1 {
			return Bytes(strs[0]), nil
		}
		vs := make([]Value, len(strs))
		for i, s := range strs {
			vs[i] = Bytes(s)
		}
		return List(vs...), nil
	}
	if len(arr.Shape) == 0 {
		return Classify(arr.At(0))
	}
	return Array(arr), nil
}

// derive adds the convenience fields computed from the header.
func derive(o *Object, h *hdf5.Group, u *units.Map) error {
	timeUnit, ok := u.Role("time")
	if !ok {
		timeUnit = units.Quantity{Value: 1, Unit: units.Dimensionless}
	}
	if t, ok := firstFloat(h, "Time"); ok {
		o.Set("time", Quantity(timeUnit.In(t)))
	}
	if a, ok := firstFloat(h, "Scale-factor"); ok {
		o.Set("scale_factor", Float(a))
		o.Set("a", Float(a))
	}
	if z, ok := firstFloat(h, "Redshift"); ok {
		o.Set("redshift", Float(z))
		o.Set("z", Float(z))
	}
	if a := h.Attr("BoxSize"); a != nil {
		if box, err := a.Array(); err == nil {
			o.Set("boxsize", Array(box))
		}
	}
	if n, ok := firstInt(h, "Dimension"); ok {
		o.Set("dimension", Int32(int32(n)))
	}
	if n, ok := firstInt(h, "NumFilesPerSnapshot"); ok {
		o.Set("num_files_per_snapshot", Int32(int32(n)))
	}

	counts, err := particleCounts(h)
	if err != nil {
		return err
	}
	if counts != nil {
		all := make([]Value, len(counts))
		var present []Value
		types := NewObject()
		for i, n := range counts {
			name := ParticleTypeName(i)
			o.Set("n_"+name, Int64(n))
			all[i] = Int32(int32(i))
			if n > 0 {
				present = append(present, Int32(int32(i)))
				types.Set(name, ParticleTypeValue(&ParticleType{Type: i, Name: name, Count: n}))
			}
		}
		o.Set("particle_types", List(all...))
		o.Set("present_particle_types", List(present...))
		o.Set("particle_type_metadata", ObjectValue(types))
	}

	if a := h.Attr("MassTable"); a != nil {
		masses, err := a.ReadFloat64()
		if err != nil {
			return fmt.Errorf("reading Header@MassTable: %w", err)
		}
		mass, _ := u.Role("mass")
		o.Set("mass_table", MassTableValue(&MassTable{Masses: masses, Unit: mass}))
	}

	if s, ok := firstString(h, "Snapshot date"); ok {
		if t, err := time.Parse(snapshotDateLayout, s); err == nil {
			o.Set("snapshot_date", Time(t.UTC()))
		}
	}
	for _, k := range []struct{ attr, key string }{{"Code", "code_name"}, {"RunName", "run_name"}} {
		if v, ok := o.header(k.attr); ok && v.kind == KindBytes {
			o.Set(k.key, v)
		}
	}
	return nil
}

// header returns an attribute value copied from the Header group.
func (o *Object) header(name string) (Value, bool) {
	hv, ok := o.Get("header")
	if !ok || hv.kind != KindObject {
		return Value{}, false
	}
	return hv.v.(*Object).Get(name)
}

// particleCounts combines NumPart_Total with NumPart_Total_HighWord. It
// returns nil when the header has no counts.
func particleCounts(h *hdf5.Group) ([]int64, error) {
	a := h.Attr("NumPart_Total")
	if a == nil {
		return nil, nil
	}
	low, err := a.ReadInt64()
	if err != nil {
		return nil, fmt.Errorf("reading Header@NumPart_Total: %w", err)
	}
	var high []int64
	if hw := h.Attr("NumPart_Total_HighWord"); hw != nil {
		if high, err = hw.ReadInt64(); err != nil {
			return nil, fmt.Errorf("reading Header@NumPart_Total_HighWord: %w", err)
		}
	}
	counts := make([]int64, len(low))
	for i, n := range low {
		counts[i] = n
		if i < len(high) {
			counts[i] += high[i] << 32
		}
	}
	return counts, nil
}

func firstFloat(g *hdf5.Group, name string) (float64, bool) {
	a := g.Attr(name)
	if a == nil {
		return 0, false
	}
	vals, err := a.ReadFloat64()
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func firstInt(g *hdf5.Group, name string) (int64, bool) {
	a := g.Attr(name)
	if a == nil {
		return 0, false
	}
	vals, err := a.ReadInt64()
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func firstString(g *hdf5.Group, name string) (string, bool) {
	a := g.Attr(name)
	if a == nil || !a.IsString() {
		return "", false
	}
	vals, err := a.ReadString()
	if err != nil || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}
