package units

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/hdf5"
)

// Unit attribute names written by SWIFT.
const (
	AttrMass        = "Unit mass in cgs (U_M)"
	AttrLength      = "Unit length in cgs (U_L)"
	AttrTime        = "Unit time in cgs (U_t)"
	AttrCurrent     = "Unit current in cgs (U_I)"
	AttrTemperature = "Unit temperature in cgs (U_T)"
)

// Astronomical units in cgs.
const (
	SolarMass  = 1.98841e33
	Megaparsec = 3.0856775814913673e24
	Gigayear   = 3.15576e16
)

type role struct {
	name  string
	attr  string
	cgs   string
	unit  string
	scale float64
}

var roles = []role{
	{name: "mass", attr: AttrMass, cgs: "g", unit: "Msun", scale: SolarMass},
	{name: "length", attr: AttrLength, cgs: "cm", unit: "Mpc", scale: Megaparsec},
	{name: "time", attr: AttrTime, cgs: "s", unit: "Gyr", scale: Gigayear},
	{name: "current", attr: AttrCurrent, cgs: "statA", unit: "statA", scale: 1},
	{name: "temperature", attr: AttrTemperature, cgs: "K", unit: "K", scale: 1},
}

// Groups searched for the unit attributes, in order.
var unitGroups = []string{"Units", "InternalCodeUnits"}

// Read reads the unit system of an open snapshot.
func Read(f *hdf5.File) (*Map, error) {
	var (
		g   *hdf5.Group
		err error
	)
	for _, name := range unitGroups {
		g, err = f.OpenGroup(name)
		if err == nil {
			break
		}
		if !errors.Is(err, hdf5.ErrNotFound) {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
	}
	if g == nil {
		return nil, apierr.NewUnitConversion(KeyUnits, fmt.Errorf("%s: no unit group", f.Path()))
	}

	m := &Map{
		Filename: f.Path(),
		Base:     make(map[string]Quantity, len(roles)),
		Roles:    make(map[string]Quantity, len(roles)),
	}
	for _, r := range roles {
		a := g.Attr(r.attr)
		if a == nil {
			return nil, apierr.NewUnitConversion(r.attr, fmt.Errorf("missing attribute in %s", g.Path()))
		}
		vals, err := a.ReadFloat64()
		if err != nil || len(vals) == 0 {
			return nil, apierr.NewUnitConversion(r.attr, fmt.Errorf("reading %s: %v", g.Path(), err))
		}
		m.Base[r.attr] = Quantity{Value: vals[0], Unit: r.cgs}
		m.Roles[r.name] = Quantity{Value: vals[0] / r.scale, Unit: r.unit}
	}
	return m, nil
}

// FromFile opens path and reads its unit system.
func FromFile(path string, opts ...hdf5.OpenOption) (*Map, error) {
	f, err := hdf5.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
