package metadata

import (
	"fmt"
	"math"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/dtype"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

var json = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

// isoLayout is the ISO-8601 form of a whole-second value with no offset.
// FormatTime appends the fraction and offset as needed.
const isoLayout = "2006-01-02T15:04:05"

type encodeFunc func(v Value, key string) (any, error)

// encoders maps each kind to its JSON-safe encoder. It is filled in init
// because the container encoders recurse through it.
var encoders [numKinds]encodeFunc

func init() {
	encoders = [numKinds]encodeFunc{
		KindNull:         func(Value, string) (any, error) { return nil, nil },
		KindBool:         func(v Value, _ string) (any, error) { return v.v.(bool), nil },
		KindInt32:        func(v Value, _ string) (any, error) { return int64(v.v.(int32)), nil },
		KindInt64:        func(v Value, _ string) (any, error) { return v.v.(int64), nil },
		KindFloat:        encodeFloat,
		KindString:       func(v Value, _ string) (any, error) { return v.v.(string), nil },
		KindBytes:        func(v Value, _ string) (any, error) { return dtype.Text(v.v.([]byte)), nil },
		KindQuantity:     func(v Value, _ string) (any, error) { return v.v.(units.Quantity).String(), nil },
		KindArray:        encodeArray,
		KindMassTable:    func(v Value, _ string) (any, error) { return v.v.(*MassTable).String(), nil },
		KindParticleType: func(v Value, _ string) (any, error) { return v.v.(*ParticleType).String(), nil },
		KindTime:         func(v Value, _ string) (any, error) { return FormatTime(v.v.(time.Time)), nil },
		KindList:         encodeList,
		KindObject:       encodeObject,
		KindUnits:        encodeUnits,
		KindHandle:       refuseHandle,
	}
}

// encode dispatches v to the encoder for its kind. key is the dotted path
// of v, used in error messages.
func encode(v Value, key string) (any, error) {
	if v.kind >= numKinds || encoders[v.kind] == nil {
		return nil, apierr.NewMetadataSerialization(key, apierr.NewUnencodableValue(v.kind.String()))
	}
	return encoders[v.kind](v, key)
}

func encodeFloat(v Value, _ string) (any, error) {
	f := v.v.(float64)
	switch {
	case math.IsNaN(f):
		return "NaN", nil
	case math.IsInf(f, 1):
		return "Infinity", nil
	case math.IsInf(f, -1):
		return "-Infinity", nil
	}
	return f, nil
}

func encodeArray(v Value, key string) (any, error) {
	a := v.v.(*ndarray.Array)
	if a == nil {
		return nil, nil
	}
	if n := ndarray.NumElements(a.Shape); a.Len() != n {
		return nil, apierr.NewMetadataSerialization(key,
			fmt.Errorf("array holds %d elements, shape %v needs %d", a.Len(), a.Shape, n))
	}
	return ndarray.Encode(a).Array, nil
}

func encodeList(v Value, key string) (any, error) {
	vs := v.v.([]Value)
	out := make([]any, len(vs))
	for i, e := range vs {
		x, err := encode(e, fmt.Sprintf("%s[%d]", key, i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func encodeObject(v Value, key string) (any, error) {
	o := v.v.(*Object)
	if o == nil {
		return nil, nil
	}
	out := make(map[string]any, o.Len())
	for _, k := range o.keys {
		x, err := encode(o.vals[k], joinKey(key, k))
		if err != nil {
			return nil, err
		}
		out[k] = x
	}
	return out, nil
}

func encodeUnits(v Value, key string) (any, error) {
	u := v.v.(*units.Map)
	if u == nil {
		return nil, nil
	}
	if u.Handle != nil {
		return refuseHandle(Handle(u.Handle), joinKey(key, "handle"))
	}
	return u.Wire(), nil
}

func refuseHandle(v Value, key string) (any, error) {
	return nil, apierr.NewMetadataSerialization(key, apierr.NewUnencodableValue(fmt.Sprintf("%s %T", KindHandle, v.v)))
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// FormatTime renders t as ISO-8601 with a fraction only when there are
// microseconds, and no offset for UTC.
func FormatTime(t time.Time) string {
	var b strings.Builder
	b.WriteString(t.Format(isoLayout))
	if us := t.Nanosecond() / 1000; us != 0 {
		fmt.Fprintf(&b, ".%06d", us)
	}
	if t.Location() != time.UTC {
		b.WriteString(t.Format("-07:00"))
	}
	return b.String()
}

// ParseTime is the inverse of FormatTime. Values without an offset are UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.999999Z07:00", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 time %q", s)
}

// Serialize converts o into a JSON-safe map. If any value cannot be
// encoded the whole call fails with apierr.MetadataSerialization naming the
// value's key and kind; no partial result is returned.
func Serialize(o *Object) (map[string]any, error) {
	if o == nil {
		return nil, apierr.NewMetadataSerialization("", fmt.Errorf("nil metadata object"))
	}
	out, err := encodeObject(ObjectValue(o), "")
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// MarshalJSON renders Serialize's result as JSON text.
func MarshalJSON(o *Object) ([]byte, error) {
	m, err := Serialize(o)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, apierr.NewMetadataSerialization("", err)
	}
	return b, nil
}
