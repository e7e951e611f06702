package metadata

import (
	"fmt"
	"sort"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// The binary form is MessagePack. Every value is a two-element array of its
// kind and payload, so the tree decodes back to the same kinds it was built
// from. Objects are maps written in key order.

const (
	blobMagic   = "swiftserve/metadata"
	blobVersion = 1
)

type marshalFunc func(b []byte, v Value, key string) ([]byte, error)
type unmarshalFunc func(b []byte) (Value, []byte, error)

var (
	_ msgp.Marshaler   = (*Object)(nil)
	_ msgp.Unmarshaler = (*Object)(nil)
)

var (
	marshalers   [numKinds]marshalFunc
	unmarshalers [numKinds]unmarshalFunc
)

func init() {
	marshalers = [numKinds]marshalFunc{
		KindNull:         func(b []byte, _ Value, _ string) ([]byte, error) { return msgp.AppendNil(b), nil },
		KindBool:         func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendBool(b, v.v.(bool)), nil },
		KindInt32:        func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendInt32(b, v.v.(int32)), nil },
		KindInt64:        func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendInt64(b, v.v.(int64)), nil },
		KindFloat:        func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendFloat64(b, v.v.(float64)), nil },
		KindString:       func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendString(b, v.v.(string)), nil },
		KindBytes:        func(b []byte, v Value, _ string) ([]byte, error) { return msgp.AppendBytes(b, v.v.([]byte)), nil },
		KindQuantity:     func(b []byte, v Value, _ string) ([]byte, error) { return appendQuantity(b, v.v.(units.Quantity)), nil },
		KindArray:        marshalArray,
		KindMassTable:    marshalMassTable,
		KindParticleType: marshalParticleType,
		KindTime:         marshalTime,
		KindList:         marshalList,
		KindObject:       func(b []byte, v Value, key string) ([]byte, error) { return appendObject(b, v.v.(*Object), key) },
		KindUnits:        marshalUnits,
		KindHandle: func(b []byte, v Value, key string) ([]byte, error) {
			_, err := refuseHandle(v, key)
			return b, err
		},
	}

	unmarshalers = [numKinds]unmarshalFunc{
		KindNull: func(b []byte) (Value, []byte, error) {
			o, err := msgp.ReadNilBytes(b)
			return Null(), o, err
		},
		KindBool: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadBoolBytes(b)
			return Bool(x), o, err
		},
		KindInt32: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadInt32Bytes(b)
			return Int32(x), o, err
		},
		KindInt64: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadInt64Bytes(b)
			return Int64(x), o, err
		},
		KindFloat: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadFloat64Bytes(b)
			return Float(x), o, err
		},
		KindString: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadStringBytes(b)
			return String(x), o, err
		},
		KindBytes: func(b []byte) (Value, []byte, error) {
			x, o, err := msgp.ReadBytesBytes(b, nil)
			return Bytes(x), o, err
		},
		KindQuantity: func(b []byte) (Value, []byte, error) {
			q, o, err := readQuantity(b)
			return Quantity(q), o, err
		},
		KindArray:        unmarshalArray,
		KindMassTable:    unmarshalMassTable,
		KindParticleType: unmarshalParticleType,
		KindTime:         unmarshalTime,
		KindList:         unmarshalList,
		KindObject: func(b []byte) (Value, []byte, error) {
			obj, o, err := readObject(b)
			return ObjectValue(obj), o, err
		},
		KindUnits: unmarshalUnits,
	}
}

// MarshalBinary encodes o in its full-fidelity binary form. It fails with
// apierr.MetadataSerialization if o still holds a live handle.
func (o *Object) MarshalBinary() ([]byte, error) {
	b, err := o.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalBinary replaces o's contents with the object encoded in data.
func (o *Object) UnmarshalBinary(data []byte) error {
	_, err := o.UnmarshalMsg(data)
	return err
}

// MarshalMsg implements msgp.Marshaler.
func (o *Object) MarshalMsg(b []byte) ([]byte, error) {
	if o == nil {
		return b, apierr.NewMetadataSerialization("", fmt.Errorf("nil metadata object"))
	}
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendString(b, blobMagic)
	b = msgp.AppendInt(b, blobVersion)
	return appendObject(b, o, "")
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (o *Object) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, fmt.Errorf("reading metadata blob: %w", err)
	}
	if n != 3 {
		return b, fmt.Errorf("reading metadata blob: header has %d fields", n)
	}
	magic, b, err := msgp.ReadStringBytes(b)
	if err != nil || magic != blobMagic {
		return b, fmt.Errorf("reading metadata blob: not a metadata blob")
	}
	version, b, err := msgp.ReadIntBytes(b)
	if err != nil {
		return b, fmt.Errorf("reading metadata blob: %w", err)
	}
	if version != blobVersion {
		return b, fmt.Errorf("reading metadata blob: unsupported version %d", version)
	}
	obj, b, err := readObject(b)
	if err != nil {
		return b, fmt.Errorf("reading metadata blob: %w", err)
	}
	if obj == nil {
		return b, fmt.Errorf("reading metadata blob: nil metadata object")
	}
	*o = *obj
	return b, nil
}

func appendValue(b []byte, v Value, key string) ([]byte, error) {
	if v.kind >= numKinds || marshalers[v.kind] == nil {
		return b, apierr.NewMetadataSerialization(key, apierr.NewUnencodableValue(v.kind.String()))
	}
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendUint8(b, uint8(v.kind))
	return marshalers[v.kind](b, v, key)
}

func readValue(b []byte) (Value, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 2 {
		return Value{}, b, fmt.Errorf("value has %d fields, want 2", n)
	}
	k, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return Value{}, b, err
	}
	kind := Kind(k)
	if kind >= numKinds || unmarshalers[kind] == nil {
		return Value{}, b, fmt.Errorf("unknown value kind %s", kind)
	}
	return unmarshalers[kind](b)
}

func appendObject(b []byte, o *Object, key string) ([]byte, error) {
	if o == nil {
		return msgp.AppendNil(b), nil
	}
	b = msgp.AppendMapHeader(b, uint32(o.Len()))
	var err error
	for _, k := range o.keys {
		b = msgp.AppendString(b, k)
		if b, err = appendValue(b, o.vals[k], joinKey(key, k)); err != nil {
			return b, err
		}
	}
	return b, nil
}

func readObject(b []byte) (*Object, []byte, error) {
	if msgp.IsNil(b) {
		o, err := msgp.ReadNilBytes(b)
		return nil, o, err
	}
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	obj := NewObject()
	for i := uint32(0); i < n; i++ {
		var (
			k string
			v Value
		)
		if k, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		if v, b, err = readValue(b); err != nil {
			return nil, b, fmt.Errorf("%s: %w", k, err)
		}
		obj.Set(k, v)
	}
	return obj, b, nil
}

func marshalList(b []byte, v Value, key string) ([]byte, error) {
	vs := v.v.([]Value)
	b = msgp.AppendArrayHeader(b, uint32(len(vs)))
	var err error
	for i, e := range vs {
		if b, err = appendValue(b, e, fmt.Sprintf("%s[%d]", key, i)); err != nil {
			return b, err
		}
	}
	return b, nil
}

func readValues(b []byte) ([]Value, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	vs := make([]Value, n)
	for i := range vs {
		if vs[i], b, err = readValue(b); err != nil {
			return nil, b, err
		}
	}
	return vs, b, nil
}

func unmarshalList(b []byte) (Value, []byte, error) {
	vs, b, err := readValues(b)
	return List(vs...), b, err
}

func appendQuantity(b []byte, q units.Quantity) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendFloat64(b, q.Value)
	return msgp.AppendString(b, q.Unit)
}

func readQuantity(b []byte) (units.Quantity, []byte, error) {
	var q units.Quantity
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return q, b, err
	}
	if n != 2 {
		return q, b, fmt.Errorf("quantity has %d fields, want 2", n)
	}
	if q.Value, b, err = msgp.ReadFloat64Bytes(b); err != nil {
		return q, b, err
	}
	q.Unit, b, err = msgp.ReadStringBytes(b)
	return q, b, err
}

func marshalArray(b []byte, v Value, key string) ([]byte, error) {
	a := v.v.(*ndarray.Array)
	if a == nil {
		return msgp.AppendNil(b), nil
	}
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendString(b, a.DType.String())
	b = msgp.AppendArrayHeader(b, uint32(len(a.Shape)))
	for _, d := range a.Shape {
		b = msgp.AppendInt(b, d)
	}

	if a.DType.Class == ndarray.ClassObject {
		elems, _ := a.Data.([]any)
		b = msgp.AppendArrayHeader(b, uint32(len(elems)))
		for i, e := range elems {
			ev, err := Classify(e)
			if err != nil {
				return b, apierr.NewMetadataSerialization(fmt.Sprintf("%s[%d]", key, i), err)
			}
			if b, err = appendValue(b, ev, fmt.Sprintf("%s[%d]", key, i)); err != nil {
				return b, err
			}
		}
		return b, nil
	}

	raw, err := a.Bytes()
	if err != nil {
		return b, apierr.NewMetadataSerialization(key, err)
	}
	return msgp.AppendBytes(b, raw), nil
}

func unmarshalArray(b []byte) (Value, []byte, error) {
	if msgp.IsNil(b) {
		o, err := msgp.ReadNilBytes(b)
		return Array(nil), o, err
	}
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 3 {
		return Value{}, b, fmt.Errorf("array has %d fields, want 3", n)
	}
	tag, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	dt, err := ndarray.ParseDType(tag)
	if err != nil {
		return Value{}, b, err
	}
	rank, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	shape := make([]int, rank)
	for i := range shape {
		if shape[i], b, err = msgp.ReadIntBytes(b); err != nil {
			return Value{}, b, err
		}
	}

	if dt.Class == ndarray.ClassObject {
		vs, o, err := readValues(b)
		if err != nil {
			return Value{}, o, err
		}
		elems := make([]any, len(vs))
		for i, e := range vs {
			elems[i] = e.v
		}
		return Array(&ndarray.Array{Shape: shape, DType: dt, Data: elems}), o, nil
	}

	raw, b, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return Value{}, b, err
	}
	a, err := ndarray.FromRaw(dt, shape, raw)
	if err != nil {
		return Value{}, b, err
	}
	return Array(a), b, nil
}

func marshalMassTable(b []byte, v Value, _ string) ([]byte, error) {
	m := v.v.(*MassTable)
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendArrayHeader(b, uint32(len(m.Masses)))
	for _, x := range m.Masses {
		b = msgp.AppendFloat64(b, x)
	}
	return appendQuantity(b, m.Unit), nil
}

func unmarshalMassTable(b []byte) (Value, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 2 {
		return Value{}, b, fmt.Errorf("mass table has %d fields, want 2", n)
	}
	count, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	m := &MassTable{Masses: make([]float64, count)}
	for i := range m.Masses {
		if m.Masses[i], b, err = msgp.ReadFloat64Bytes(b); err != nil {
			return Value{}, b, err
		}
	}
	m.Unit, b, err = readQuantity(b)
	return MassTableValue(m), b, err
}

func marshalParticleType(b []byte, v Value, _ string) ([]byte, error) {
	p := v.v.(*ParticleType)
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendInt(b, p.Type)
	b = msgp.AppendString(b, p.Name)
	return msgp.AppendInt64(b, p.Count), nil
}

func unmarshalParticleType(b []byte) (Value, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 3 {
		return Value{}, b, fmt.Errorf("particle type has %d fields, want 3", n)
	}
	p := &ParticleType{}
	if p.Type, b, err = msgp.ReadIntBytes(b); err != nil {
		return Value{}, b, err
	}
	if p.Name, b, err = msgp.ReadStringBytes(b); err != nil {
		return Value{}, b, err
	}
	p.Count, b, err = msgp.ReadInt64Bytes(b)
	return ParticleTypeValue(p), b, err
}

// Times keep their instant and UTC offset; zone names are not preserved.
func marshalTime(b []byte, v Value, _ string) ([]byte, error) {
	t := v.v.(time.Time)
	_, offset := t.Zone()
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendTime(b, t)
	b = msgp.AppendInt32(b, int32(offset))
	return msgp.AppendBool(b, t.Location() == time.UTC), nil
}

func unmarshalTime(b []byte) (Value, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 3 {
		return Value{}, b, fmt.Errorf("time has %d fields, want 3", n)
	}
	t, b, err := msgp.ReadTimeBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	offset, b, err := msgp.ReadInt32Bytes(b)
	if err != nil {
		return Value{}, b, err
	}
	utc, b, err := msgp.ReadBoolBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if utc {
		return Time(t.UTC()), b, nil
	}
	return Time(t.In(time.FixedZone("", int(offset)))), b, nil
}

func marshalUnits(b []byte, v Value, key string) ([]byte, error) {
	u := v.v.(*units.Map)
	if u == nil {
		return msgp.AppendNil(b), nil
	}
	if u.Handle != nil {
		_, err := refuseHandle(Handle(u.Handle), joinKey(key, "handle"))
		return b, err
	}
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendString(b, u.Filename)
	b = appendQuantities(b, u.Base)
	return appendQuantities(b, u.Roles), nil
}

func appendQuantities(b []byte, qs map[string]units.Quantity) []byte {
	keys := make([]string, 0, len(qs))
	for k := range qs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b = msgp.AppendMapHeader(b, uint32(len(keys)))
	for _, k := range keys {
		b = msgp.AppendString(b, k)
		b = appendQuantity(b, qs[k])
	}
	return b
}

func readQuantities(b []byte) (map[string]units.Quantity, []byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	qs := make(map[string]units.Quantity, n)
	for i := uint32(0); i < n; i++ {
		var (
			k string
			q units.Quantity
		)
		if k, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		if q, b, err = readQuantity(b); err != nil {
			return nil, b, err
		}
		qs[k] = q
	}
	return qs, b, nil
}

func unmarshalUnits(b []byte) (Value, []byte, error) {
	if msgp.IsNil(b) {
		o, err := msgp.ReadNilBytes(b)
		return Units(nil), o, err
	}
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, b, err
	}
	if n != 3 {
		return Value{}, b, fmt.Errorf("units have %d fields, want 3", n)
	}
	u := &units.Map{}
	if u.Filename, b, err = msgp.ReadStringBytes(b); err != nil {
		return Value{}, b, err
	}
	if u.Base, b, err = readQuantities(b); err != nil {
		return Value{}, b, err
	}
	u.Roles, b, err = readQuantities(b)
	return Units(u), b, err
}
