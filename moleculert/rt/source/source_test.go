package source

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ethane = `8
ethane
C  0.000  0.000  0.7680
C  0.000  0.000 -0.7680
H -1.0192 0.000  1.1573
H  0.5096 0.8826 1.1573
H  0.5096 -0.8826 1.1573
H  1.0192 0.000 -1.1573
H -0.5096 -0.8826 -1.1573
H -0.5096 0.8826 -1.1573
`

func TestParseXYZ(t *testing.T) {
	frames, err := ParseXYZ(strings.NewReader(ethane))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	atoms := frames[0]
	require.Len(t, atoms, 8)
	assert.Equal(t, Carbon, atoms[0].Element)
	assert.Equal(t, Hydrogen, atoms[7].Element)
	assert.InDelta(t, 0.0768, atoms[0].Position.Z(), 1e-6)
	assert.InDelta(t, -0.10192, atoms[2].Position.X(), 1e-6)
}

func TestParseXYZMultipleFrames(t *testing.T) {
	data := "2\nframe 0\nO 0 0 0\n8 1 0 0\n\n2\n\nO 0 0 1\n8 1 0 1\n"
	frames, err := ParseXYZ(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, Oxygen, frames[1][1].Element)
	assert.InDelta(t, 0.1, frames[1][0].Position.Z(), 1e-6)

	src := &XYZSource{Frames: frames, FramesPerSecond: 2}
	assert.Equal(t, frames[0], src.Atoms(0))
	assert.Equal(t, frames[1], src.Atoms(0.5))
	assert.Equal(t, frames[0], src.Atoms(1))
}

func TestParseXYZErrors(t *testing.T) {
	for name, data := range map[string]string{
		"empty":     "",
		"count":     "two\n\nC 0 0 0\n",
		"truncated": "3\n\nC 0 0 0\n",
		"symbol":    "1\n\nQq 0 0 0\n",
		"coords":    "1\n\nC 0 zero 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseXYZ(strings.NewReader(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, molrt.ErrConfiguration))
		})
	}
}

func TestLoadXYZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ethane.xyz")
	require.NoError(t, os.WriteFile(path, []byte(ethane), 0o644))
	src, err := LoadXYZ(path, 30)
	require.NoError(t, err)
	assert.Len(t, src.Atoms(10), 8)

	_, err = LoadXYZ(filepath.Join(t.TempDir(), "missing.xyz"), 30)
	assert.Error(t, err)
}

func TestDefaultStyles(t *testing.T) {
	styles := DefaultStyles()
	require.Len(t, styles, int(MaxStyled)+1)
	assert.InDelta(t, 0.1426, styles[Carbon].Radius, 1e-6)
	assert.True(t, styles[Gold].Available)
	assert.False(t, styles[40].Available)

	atoms := []core.Atom{core.NewAtom(0, 0, 0, 40), core.NewAtom(0, 0, 0, Silicon)}
	core.ApplyStyles(atoms, styles)
	assert.Equal(t, uint8(0), atoms[0].Element)
	assert.Equal(t, core.FlagUnavailable|core.FlagSubstituted, atoms[0].Flags)
	assert.Equal(t, Silicon, atoms[1].Element)

	z, ok := ElementNumber("au")
	assert.True(t, ok)
	assert.Equal(t, Gold, z)
	_, ok = ElementNumber("X")
	assert.False(t, ok)

	p := DefaultStyleProvider()
	assert.Equal(t, float32(DefaultLightPower), p.LightPower())
}

func TestDiamondLattice(t *testing.T) {
	atoms := DiamondLattice(2, Carbon)
	require.Len(t, atoms, 64)

	var lo, hi mgl32.Vec3
	nearest := float32(1)
	for i, a := range atoms {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], a.Position[k])
			hi[k] = max(hi[k], a.Position[k])
		}
		for _, b := range atoms[i+1:] {
			nearest = min(nearest, a.Position.Sub(b.Position).Len())
		}
	}
	assert.InDelta(t, -DiamondLatticeConstant, lo.X(), 1e-5)
	assert.InDelta(t, DiamondLatticeConstant*0.75, hi.X(), 1e-5)
	// C-C bond length a*sqrt(3)/4.
	assert.InDelta(t, 0.1546, nearest, 1e-3)

	assert.Empty(t, DiamondLattice(0, Carbon))
}

func TestLatticeSourceRotation(t *testing.T) {
	src := NewLatticeSource(1, 1)
	base := append([]core.Atom(nil), src.Base...)
	assert.Equal(t, base, src.Atoms(0))

	rotated := src.Atoms(0.5)
	require.Len(t, rotated, len(base))
	assert.NotEqual(t, base[1].Position, rotated[1].Position)
	for i := range base {
		assert.InDelta(t, base[i].Position.Len(), rotated[i].Position.Len(), 1e-5)
		assert.InDelta(t, base[i].Position.Z(), rotated[i].Position.Z(), 1e-5)
	}
	assert.Equal(t, base, src.Base)
}

func TestBoundingSphereAndFraming(t *testing.T) {
	c, r := BoundingSphere(nil)
	assert.Equal(t, mgl32.Vec3{}, c)
	assert.Zero(t, r)

	atoms := []core.Atom{core.NewAtom(1, 0, 0, Carbon), core.NewAtom(3, 0, 0, Carbon), core.NewAtom(2, 1, 0, Carbon)}
	c, r = BoundingSphere(atoms)
	assert.InDelta(t, 2, c.X(), 1e-6)
	assert.InDelta(t, 0.5, c.Y(), 1e-6)
	assert.InDelta(t, math.Sqrt(1.25), r, 1e-5)

	cam := FramingCamera(atoms, 60)
	assert.InDelta(t, 2, cam.Position.X(), 1e-5)
	assert.Less(t, cam.Position.Y(), c.Y()-2*r)
}
