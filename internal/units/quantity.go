// Package units holds the unit system of a snapshot: the base cgs units
// stored in the file and the astronomical role quantities derived from
// them, in both parsed and wire ("<value> <unit>") form.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dimensionless is the unit of a bare number.
const Dimensionless = "dimensionless"

// Quantity is a value carrying a unit expression such as "Msun",
// "cm**3/g" or "977.79*Gyr".
type Quantity struct {
	Value float64
	Unit  string
}

// String returns the wire form "<value> <unit>". Values use the shortest
// representation that parses back to the same float64.
func (q Quantity) String() string {
	unit := q.Unit
	if unit == "" {
		unit = Dimensionless
	}
	return formatFloat(q.Value) + " " + unit
}

// Scaled returns q as a unit expression, so that a value measured in q can
// be written as another quantity: 977.79 Gyr becomes "977.79*Gyr". A value
// of one yields the bare unit.
func (q Quantity) Scaled() string {
	if q.Value == 1 {
		return q.Unit
	}
	return formatFloat(q.Value) + "*" + q.Unit
}

// In returns value expressed in units of q.
func (q Quantity) In(value float64) Quantity {
	return Quantity{Value: value, Unit: q.Scaled()}
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseQuantity parses "<value> <unit>". The unit may contain spaces and
// operators; a bare number is dimensionless.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Quantity{}, fmt.Errorf("empty quantity")
	}
	num, unit, _ := strings.Cut(s, " ")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: bad value %q", s, num)
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = Dimensionless
	}
	return Quantity{Value: v, Unit: unit}, nil
}
