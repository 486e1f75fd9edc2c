package molrt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDescriptorIsValid(t *testing.T) {
	desc := DefaultDescriptor()
	require.NoError(t, desc.Validate())

	w, h := desc.IntermediateSize()
	assert.Equal(t, 640, w)
	assert.Equal(t, 360, h)
	assert.Equal(t, 2, desc.FramesInFlight())
}

func TestDescriptorValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(d *RendererDescriptor)
	}{
		{"zero width", func(d *RendererDescriptor) { d.Width = 0 }},
		{"bad upscale", func(d *RendererDescriptor) { d.UpscaleFactor = 4 }},
		{"offline upscale", func(d *RendererDescriptor) { d.Offline = true }},
		{"indivisible", func(d *RendererDescriptor) { d.Width = 1281 }},
		{"scene size", func(d *RendererDescriptor) { d.SceneSize = "huge" }},
		{"backend", func(d *RendererDescriptor) { d.Backend = "vulkan" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc := DefaultDescriptor()
			tc.mutate(&desc)
			err := desc.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestSceneSizeCellWidth(t *testing.T) {
	assert.Equal(t, float32(0.25), SceneSmall.CellWidth())
	assert.Equal(t, float32(0.5), SceneLarge.CellWidth())
	assert.Equal(t, float32(0.5), SceneExtreme.CellWidth())
	assert.True(t, SceneExtreme.BuildOnce())
	assert.False(t, SceneLarge.BuildOnce())
}

func TestLoadDescriptorYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	data := "width: 800\nheight: 600\nupscale_factor: 1\noffline: true\nscene_size: large\nbackend: cpu\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	desc, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, 800, desc.Width)
	assert.True(t, desc.Offline)
	assert.Equal(t, SceneLarge, desc.SceneSize)
	assert.Equal(t, 4, desc.FramesInFlight())
	// untouched fields keep defaults
	assert.Equal(t, "interactive", desc.Quality)
}

func TestLoadDescriptorTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.toml")
	data := "width = 960\nheight = 540\nupscale_factor = 3\nbackend = \"cpu\"\nquality = \"production\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	desc, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, 960, desc.Width)
	assert.Equal(t, 3, desc.UpscaleFactor)
	assert.Equal(t, "production", desc.Quality)
}

func TestLoadDescriptorRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yml")
	require.NoError(t, os.WriteFile(path, []byte("widht: 10\n"), 0o644))

	_, err := LoadDescriptor(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadDescriptorUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.ini")
	require.NoError(t, os.WriteFile(path, []byte("width=1"), 0o644))

	_, err := LoadDescriptor(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}
