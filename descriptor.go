package molrt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type SceneSize string

const (
	SceneSmall   SceneSize = "small"
	SceneLarge   SceneSize = "large"
	SceneExtreme SceneSize = "extreme"
)

// CellWidth is the dense grid cell width in nanometers.
func (s SceneSize) CellWidth() float32 {
	if s == SceneSmall {
		return 0.25
	}
	return 0.5
}

// BuildOnce reports whether the spatial index is built for the first frame
// only and reused for the rest of the session.
func (s SceneSize) BuildOnce() bool { return s == SceneExtreme }

func (s SceneSize) valid() bool {
	switch s {
	case SceneSmall, SceneLarge, SceneExtreme:
		return true
	}
	return false
}

const (
	BackendCPU  = "cpu"
	BackendWGPU = "wgpu"
)

// RendererDescriptor configures a renderer session. It is loaded from YAML or
// TOML and then overridden by command line flags.
type RendererDescriptor struct {
	Width             int       `yaml:"width" toml:"width"`
	Height            int       `yaml:"height" toml:"height"`
	UpscaleFactor     int       `yaml:"upscale_factor" toml:"upscale_factor"`
	Offline           bool      `yaml:"offline" toml:"offline"`
	SceneSize         SceneSize `yaml:"scene_size" toml:"scene_size"`
	MotionVectors     bool      `yaml:"motion_vectors" toml:"motion_vectors"`
	ReportPerformance bool      `yaml:"report_performance" toml:"report_performance"`
	Backend           string    `yaml:"backend" toml:"backend"`
	Quality           string    `yaml:"quality" toml:"quality"`
	OutputDir         string    `yaml:"output_dir" toml:"output_dir"`
	ReportDB          string    `yaml:"report_db" toml:"report_db"`
}

func DefaultDescriptor() RendererDescriptor {
	return RendererDescriptor{
		Width:         1280,
		Height:        720,
		UpscaleFactor: 2,
		SceneSize:     SceneSmall,
		MotionVectors: true,
		Backend:       BackendWGPU,
		Quality:       "interactive",
		OutputDir:     "frames",
	}
}

// IntermediateSize is the resolution the ray-trace kernel renders at.
func (d RendererDescriptor) IntermediateSize() (int, int) {
	f := d.UpscaleFactor
	if f < 1 {
		f = 1
	}
	return d.Width / f, d.Height / f
}

// FramesInFlight is the staging depth of the output stage.
func (d RendererDescriptor) FramesInFlight() int {
	if d.Offline {
		return 4
	}
	return 2
}

func (d RendererDescriptor) Validate() error {
	const op = "validate descriptor"
	if d.Width <= 0 || d.Height <= 0 {
		return ConfigurationError(op, "invalid output size %dx%d", d.Width, d.Height)
	}
	switch d.UpscaleFactor {
	case 1, 2, 3:
	default:
		return ConfigurationError(op, "upscale factor %d not in {1, 2, 3}", d.UpscaleFactor)
	}
	if d.Offline && d.UpscaleFactor != 1 {
		return ConfigurationError(op, "offline rendering does not support upscaling")
	}
	if d.Width%d.UpscaleFactor != 0 || d.Height%d.UpscaleFactor != 0 {
		return ConfigurationError(op, "size %dx%d not divisible by upscale factor %d", d.Width, d.Height, d.UpscaleFactor)
	}
	if !d.SceneSize.valid() {
		return ConfigurationError(op, "unknown scene size %q", d.SceneSize)
	}
	switch d.Backend {
	case BackendCPU, BackendWGPU:
	default:
		return ConfigurationError(op, "unknown backend %q", d.Backend)
	}
	return nil
}

// LoadDescriptor reads a descriptor file on top of DefaultDescriptor. The
// format follows the extension: .yaml/.yml or .toml.
func LoadDescriptor(path string) (RendererDescriptor, error) {
	desc := DefaultDescriptor()
	data, err := os.ReadFile(path)
	if err != nil {
		return desc, ConfigurationError("load descriptor", "%w", err)
	}
	if err := DecodeDescriptor(data, filepath.Ext(path), &desc); err != nil {
		return desc, err
	}
	return desc, desc.Validate()
}

// DecodeDescriptor decodes data in the format named by ext into desc. Fields
// absent from data keep their current values.
func DecodeDescriptor(data []byte, ext string, desc *RendererDescriptor) error {
	const op = "decode descriptor"
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(desc); err != nil {
			return ConfigurationError(op, "yaml: %w", err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(desc); err != nil {
			return ConfigurationError(op, "toml: %w", err)
		}
	default:
		return ConfigurationError(op, "unsupported descriptor format %q", ext)
	}
	return nil
}

func (d RendererDescriptor) String() string {
	mode := "realtime"
	if d.Offline {
		mode = "offline"
	}
	return fmt.Sprintf("%s %dx%d x%d scene=%s backend=%s quality=%s",
		mode, d.Width, d.Height, d.UpscaleFactor, d.SceneSize, d.Backend, d.Quality)
}
