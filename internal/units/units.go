package units

import (
	"fmt"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/robert-malhotra/swiftserve/apierr"
)

// Reserved keys of the wire form.
const (
	KeyFilename = "filename"
	KeyUnits    = "units"
)

// Map is a snapshot's unit system. Base holds the file's cgs unit
// attributes keyed by attribute name; Roles holds the derived quantities
// keyed by role (mass, length, time, current, temperature).
type Map struct {
	Filename string
	Base     map[string]Quantity
	Roles    map[string]Quantity

	// Handle is the open file a bound map reads from. It is never part of
	// the wire form and must be cleared before the map is encoded.
	Handle io.Closer
}

// Clone returns a copy of m that shares no maps with it.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := &Map{
		Filename: m.Filename,
		Base:     make(map[string]Quantity, len(m.Base)),
		Roles:    make(map[string]Quantity, len(m.Roles)),
		Handle:   m.Handle,
	}
	for k, q := range m.Base {
		out.Base[k] = q
	}
	for k, q := range m.Roles {
		out.Roles[k] = q
	}
	return out
}

// Role returns a role quantity.
func (m *Map) Role(name string) (Quantity, bool) {
	if m == nil {
		return Quantity{}, false
	}
	q, ok := m.Roles[name]
	return q, ok
}

// Wire returns the JSON-safe form: every quantity as a "<value> <unit>"
// string, the base units nested under "units".
func (m *Map) Wire() map[string]any {
	out := make(map[string]any, len(m.Roles)+2)
	if m.Filename != "" {
		out[KeyFilename] = m.Filename
	}
	base := make(map[string]any, len(m.Base))
	for k, q := range m.Base {
		base[k] = q.String()
	}
	out[KeyUnits] = base
	for k, q := range m.Roles {
		out[k] = q.String()
	}
	return out
}

// Parse rebuilds a Map from its wire form. Every key other than "filename"
// and "units", and every key of the nested "units" map, must hold a
// quantity string. A missing "units" key or an unparseable value fails with
// an apierr.UnitConversion error naming the key.
func Parse(raw map[string]any) (*Map, error) {
	nested, ok := raw[KeyUnits]
	if !ok {
		return nil, apierr.NewUnitConversion(KeyUnits, fmt.Errorf("missing key %q", KeyUnits))
	}
	baseRaw, ok := nested.(map[string]any)
	if !ok {
		return nil, apierr.NewUnitConversion(KeyUnits, fmt.Errorf("expected an object, got %T", nested))
	}

	m := &Map{
		Base:  make(map[string]Quantity, len(baseRaw)),
		Roles: make(map[string]Quantity, len(raw)),
	}
	for k, v := range baseRaw {
		q, err := parseValue(v)
		if err != nil {
			return nil, apierr.NewUnitConversion(k, err)
		}
		m.Base[k] = q
	}

	for k, v := range raw {
		switch k {
		case KeyUnits:
			continue
		case KeyFilename:
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, apierr.NewUnitConversion(k, fmt.Errorf("expected a string, got %T", v))
			}
			m.Filename = s
			continue
		}
		q, err := parseValue(v)
		if err != nil {
			return nil, apierr.NewUnitConversion(k, err)
		}
		m.Roles[k] = q
	}
	return m, nil
}

func parseValue(v any) (Quantity, error) {
	switch x := v.(type) {
	case string:
		return ParseQuantity(x)
	case Quantity:
		return x, nil
	}
	return Quantity{}, fmt.Errorf("expected a quantity string, got %T", v)
}

// Signature returns a digest of the unit system that identifies it in
// cache keys. The filename is not part of the signature.
func (m *Map) Signature() uint64 {
	if m == nil {
		return 0
	}
	d := xxhash.New()
	write := func(prefix string, qs map[string]Quantity) {
		keys := make([]string, 0, len(qs))
		for k := range qs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.WriteString(prefix)
			d.WriteString(k)
			d.WriteString("=")
			d.WriteString(qs[k].String())
			d.WriteString("\n")
		}
	}
	write("units.", m.Base)
	write("", m.Roles)
	return d.Sum64()
}
