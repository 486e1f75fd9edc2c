package source

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
)

// AngstromToNanometer converts .xyz coordinates and tabulated radii.
const AngstromToNanometer = 0.1

// ParseXYZ reads every frame of an .xyz stream. Each frame is an atom count
// line, a comment line and one "symbol x y z" line per atom, in angstroms.
// The symbol may also be an atomic number.
func ParseXYZ(r io.Reader) ([][]core.Atom, error) {
	const op = "parse xyz"
	sc := bufio.NewScanner(r)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	var frames [][]core.Atom
	for {
		header, ok := next()
		if !ok {
			break
		}
		n, err := strconv.Atoi(header)
		if err != nil || n < 0 {
			return nil, molrt.ConfigurationError(op, "line %d: expected atom count, got %q", line, header)
		}
		// Comment lines may be blank, so they are read raw.
		if !sc.Scan() {
			return nil, molrt.ConfigurationError(op, "frame %d: missing comment line", len(frames))
		}
		line++

		atoms := make([]core.Atom, 0, n)
		for i := 0; i < n; i++ {
			text, ok := next()
			if !ok {
				return nil, molrt.ConfigurationError(op, "frame %d: expected %d atoms, got %d", len(frames), n, i)
			}
			a, err := parseAtomLine(text)
			if err != nil {
				return nil, molrt.ConfigurationError(op, "line %d: %v", line, err)
			}
			atoms = append(atoms, a)
		}
		frames = append(frames, atoms)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, molrt.ConfigurationError(op, "no frames")
	}
	return frames, nil
}

func parseAtomLine(text string) (core.Atom, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return core.Atom{}, strconv.ErrSyntax
	}
	element, ok := ElementNumber(fields[0])
	if !ok {
		z, err := strconv.ParseUint(fields[0], 10, 8)
		if err != nil {
			return core.Atom{}, &strconv.NumError{Func: "element", Num: fields[0], Err: strconv.ErrSyntax}
		}
		element = uint8(z)
	}
	var pos [3]float32
	for i := range pos {
		v, err := strconv.ParseFloat(fields[1+i], 32)
		if err != nil {
			return core.Atom{}, err
		}
		pos[i] = float32(v) * AngstromToNanometer
	}
	return core.NewAtom(pos[0], pos[1], pos[2], element), nil
}

// XYZSource plays back the frames of an .xyz trajectory at a fixed rate,
// looping at the end.
type XYZSource struct {
	Frames          [][]core.Atom
	FramesPerSecond float64
}

func LoadXYZ(path string, framesPerSecond float64) (*XYZSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	frames, err := ParseXYZ(f)
	if err != nil {
		return nil, err
	}
	return &XYZSource{Frames: frames, FramesPerSecond: framesPerSecond}, nil
}

func (s *XYZSource) Atoms(t float64) []core.Atom {
	if len(s.Frames) == 1 || s.FramesPerSecond <= 0 || t < 0 {
		return s.Frames[0]
	}
	return s.Frames[int(t*s.FramesPerSecond)%len(s.Frames)]
}
