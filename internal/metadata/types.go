package metadata

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/swiftserve/internal/units"
)

// ParticleTypeNames maps SWIFT particle type numbers to their names.
var ParticleTypeNames = []string{
	"gas",
	"dark_matter",
	"boundary",
	"sinks",
	"stars",
	"black_holes",
	"neutrinos",
}

// ParticleTypeName returns the name of particle type n.
func ParticleTypeName(n int) string {
	if n >= 0 && n < len(ParticleTypeNames) {
		return ParticleTypeNames[n]
	}
	return fmt.Sprintf("type%d", n)
}

// MassTable holds the fixed particle mass of each type, zero where masses
// vary per particle.
type MassTable struct {
	Masses []float64
	Unit   units.Quantity
}

// String renders the table as "MassTable(gas=0, dark_matter=0.5, ...) [unit]".
func (m *MassTable) String() string {
	var b strings.Builder
	b.WriteString("MassTable(")
	for i, v := range m.Masses {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%g", ParticleTypeName(i), v)
	}
	b.WriteString(")")
	if unit := m.Unit.Scaled(); unit != "" {
		b.WriteString(" [")
		b.WriteString(unit)
		b.WriteString("]")
	}
	return b.String()
}

// ParticleType describes one particle type present in a snapshot.
type ParticleType struct {
	Type  int
	Name  string
	Count int64
}

// Group returns the HDF5 group holding the type's fields.
func (p *ParticleType) Group() string {
	return fmt.Sprintf("PartType%d", p.Type)
}

func (p *ParticleType) String() string {
	return fmt.Sprintf("Metadata class for %s (%s), %d particles", p.Group(), p.Name, p.Count)
}
