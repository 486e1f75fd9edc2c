package shaders

import (
	_ "embed"
)

//go:embed dense_grid_reset.wgsl
var DenseGridResetWGSL string

//go:embed dense_grid_count.wgsl
var DenseGridCountWGSL string

//go:embed dense_grid_finalize.wgsl
var DenseGridFinalizeWGSL string

//go:embed dense_grid_scatter.wgsl
var DenseGridScatterWGSL string

//go:embed raytrace.wgsl
var RaytraceWGSL string

//go:embed upscale.wgsl
var UpscaleWGSL string

//go:embed fullscreen.wgsl
var FullscreenWGSL string

// Source is a compute kernel ready for pipeline creation. Every binding lives
// in group 0, in the order the kernel's caller passes them.
type Source struct {
	Code          string
	EntryPoint    string
	WorkgroupSize uint32
}

// Kernels maps kernel names to their sources.
var Kernels = map[string]Source{
	"dense_grid_reset":    {DenseGridResetWGSL, "main", 128},
	"dense_grid_count":    {DenseGridCountWGSL, "main", 128},
	"dense_grid_finalize": {DenseGridFinalizeWGSL, "main", 128},
	"dense_grid_scatter":  {DenseGridScatterWGSL, "main", 128},
	"raytrace":            {RaytraceWGSL, "main", 8},
	"upscale":             {UpscaleWGSL, "main", 8},
}
