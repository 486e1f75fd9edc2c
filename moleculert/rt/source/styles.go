package source

import (
	"strings"

	"github.com/gekko3d/molrt/moleculert/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultLightPower is the camera light intensity used with DefaultStyles.
const DefaultLightPower = 50

// Element numbers with dedicated handling.
const (
	Hydrogen  uint8 = 1
	Carbon    uint8 = 6
	Nitrogen  uint8 = 7
	Oxygen    uint8 = 8
	Silicon   uint8 = 14
	Gold      uint8 = 79
	MaxStyled uint8 = 82
)

type elementStyle struct {
	symbol string
	rgb    [3]uint8
	// radius in angstroms, 0 when the element has no style.
	radius float32
}

// Colors and radii for Z = 0..36 follow NanoEngineer; the noble gases and
// first-row transition metals use QuteMol colors.
var elements = [...]elementStyle{
	0:  {"X", [3]uint8{204, 0, 0}, 0.853},
	1:  {"H", [3]uint8{199, 199, 199}, 0.930},
	2:  {"He", [3]uint8{217, 255, 255}, 1.085},
	3:  {"Li", [3]uint8{0, 128, 128}, 3.100},
	4:  {"Be", [3]uint8{250, 171, 255}, 2.325},
	5:  {"B", [3]uint8{51, 51, 150}, 1.550},
	6:  {"C", [3]uint8{99, 99, 99}, 1.426},
	7:  {"N", [3]uint8{31, 31, 99}, 1.201},
	8:  {"O", [3]uint8{128, 0, 0}, 1.349},
	9:  {"F", [3]uint8{0, 99, 51}, 1.279},
	10: {"Ne", [3]uint8{179, 227, 245}, 1.411},
	11: {"Na", [3]uint8{0, 102, 102}, 3.100},
	12: {"Mg", [3]uint8{224, 153, 230}, 2.325},
	13: {"Al", [3]uint8{128, 128, 255}, 1.938},
	14: {"Si", [3]uint8{41, 41, 41}, 1.744},
	15: {"P", [3]uint8{84, 20, 128}, 1.635},
	16: {"S", [3]uint8{219, 150, 0}, 1.635},
	17: {"Cl", [3]uint8{74, 99, 0}, 1.573},
	18: {"Ar", [3]uint8{128, 209, 227}, 1.457},
	19: {"K", [3]uint8{0, 77, 77}, 3.875},
	20: {"Ca", [3]uint8{201, 140, 204}, 3.100},
	21: {"Sc", [3]uint8{230, 230, 230}, 2.868},
	22: {"Ti", [3]uint8{191, 194, 199}, 2.712},
	23: {"V", [3]uint8{166, 166, 171}, 2.558},
	24: {"Cr", [3]uint8{138, 153, 199}, 2.403},
	25: {"Mn", [3]uint8{156, 122, 199}, 2.325},
	26: {"Fe", [3]uint8{224, 102, 51}, 2.325},
	27: {"Co", [3]uint8{240, 144, 160}, 2.325},
	28: {"Ni", [3]uint8{80, 208, 80}, 2.325},
	29: {"Cu", [3]uint8{200, 128, 51}, 2.325},
	30: {"Zn", [3]uint8{106, 106, 130}, 2.248},
	31: {"Ga", [3]uint8{153, 153, 204}, 2.093},
	32: {"Ge", [3]uint8{102, 115, 26}, 1.938},
	33: {"As", [3]uint8{153, 66, 179}, 1.705},
	34: {"Se", [3]uint8{199, 79, 0}, 1.705},
	35: {"Br", [3]uint8{0, 102, 77}, 1.662},
	36: {"Kr", [3]uint8{92, 184, 209}, 1.565},
	50: {"Sn", [3]uint8{102, 128, 128}, 2.227},
	79: {"Au", [3]uint8{212, 175, 55}, 2.371},
	82: {"Pb", [3]uint8{87, 89, 97}, 2.339},
}

// DefaultStyles returns one style per element up to lead. Elements without
// parameters are marked unavailable and render as element 0.
func DefaultStyles() []core.AtomStyle {
	styles := make([]core.AtomStyle, len(elements))
	for z, e := range elements {
		styles[z] = core.AtomStyle{
			Color: mgl32.Vec3{
				float32(e.rgb[0]) / 255,
				float32(e.rgb[1]) / 255,
				float32(e.rgb[2]) / 255,
			},
			Radius:    e.radius * AngstromToNanometer,
			Available: e.radius > 0,
		}
	}
	return styles
}

// ElementNumber resolves a chemical symbol, case-insensitively.
func ElementNumber(symbol string) (uint8, bool) {
	for z, e := range elements {
		if e.symbol != "" && z > 0 && strings.EqualFold(e.symbol, symbol) {
			return uint8(z), true
		}
	}
	return 0, false
}

// Styles is a fixed style table.
type Styles struct {
	table []core.AtomStyle
	power float32
}

func NewStyles(table []core.AtomStyle, lightPower float32) *Styles {
	return &Styles{table: table, power: lightPower}
}

func DefaultStyleProvider() *Styles {
	return NewStyles(DefaultStyles(), DefaultLightPower)
}

func (s *Styles) Styles() []core.AtomStyle { return s.table }
func (s *Styles) LightPower() float32      { return s.power }
