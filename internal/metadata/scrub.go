package metadata

import "github.com/robert-malhotra/swiftserve/internal/units"

// Scrub replaces every handle in o, including handles held by units maps
// and nested containers, with null. It reports how many handles it
// replaced. Scrub works in place; Build runs it once on the object it owns
// before returning.
func Scrub(o *Object) int {
	if o == nil {
		return 0
	}
	n := 0
	for _, k := range o.keys {
		v, m := scrubValue(o.vals[k])
		o.vals[k] = v
		n += m
	}
	return n
}

func scrubValue(v Value) (Value, int) {
	switch v.kind {
	case KindHandle:
		return Null(), 1
	case KindObject:
		return v, Scrub(v.v.(*Object))
	case KindList:
		n := 0
		for i, e := range v.v.([]Value) {
			var m int
			v.v.([]Value)[i], m = scrubValue(e)
			n += m
		}
		return v, n
	case KindUnits:
		if u := v.v.(*units.Map); u != nil && u.Handle != nil {
			u.Handle = nil
			return v, 1
		}
	}
	return v, 0
}
