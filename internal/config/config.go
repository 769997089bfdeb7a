// Package config holds the compiler options and the extras file.
package config

import (
	"fmt"
	"os"

	"github.com/me/dxcompiler/pkg/ir"
	"gopkg.in/yaml.v3"
)

// ConflictPolicy decides what happens when the target folder already holds an
// executable with the same name but a different digest.
type ConflictPolicy string

const (
	// ConflictArchive moves old entries aside, then builds.
	ConflictArchive ConflictPolicy = "archive"
	// ConflictForceDelete deletes old entries, then builds.
	ConflictForceDelete ConflictPolicy = "force"
	// ConflictStrict fails the compilation without mutating anything.
	ConflictStrict ConflictPolicy = "strict"
)

// InstanceSelection picks when all-constant resource hints are resolved.
type InstanceSelection string

const (
	// SelectStatic resolves constant resource hints at compile time.
	SelectStatic InstanceSelection = "static"
	// SelectDynamic defers even constant hints to the runtime.
	SelectDynamic InstanceSelection = "dynamic"
)

// Options are the compiler knobs the core recognizes.
type Options struct {
	// Project and Folder locate built objects.
	Project string
	Folder  string
	// Language tag of the source document; inferred from the file extension
	// when empty.
	Language string
	// Locked emits a locked-mode top-level workflow.
	Locked bool
	// LeaveWorkflowsOpen skips the terminal close on newly built workflows.
	LeaveWorkflowsOpen bool
	// Reorg appends a reorg applet as the final stage.
	Reorg bool
	// ProjectWideReuse extends directory lookup beyond the target folder.
	ProjectWideReuse bool
	// Conflicts decides reuse vs archive vs delete vs fail.
	Conflicts ConflictPolicy
	// ScatterChunkSize is passed to scatter fragments; 0 keeps the default.
	ScatterChunkSize int
	// InstanceTypeSelection switches compile-time vs runtime resolution.
	InstanceTypeSelection InstanceSelection
	// DefaultRuntimeAttrs fill in when tasks specify nothing.
	DefaultRuntimeAttrs RuntimeAttrs
	// CacheDB enables the persistent local reuse cache when non-empty.
	CacheDB string
	// Extras carries the parsed extras file, when one was given.
	Extras *Extras
}

// RuntimeAttrs are fallback resource demands.
type RuntimeAttrs struct {
	CPU      float64 `yaml:"cpu" json:"cpu"`
	Memory   string  `yaml:"memory" json:"memory"`
	Disk     string  `yaml:"disk" json:"disk"`
	Docker   string  `yaml:"docker" json:"docker"`
	Instance string  `yaml:"instance" json:"instance"`
}

// Default returns the option defaults.
func Default() Options {
	return Options{
		Folder:                "/",
		Conflicts:             ConflictArchive,
		InstanceTypeSelection: SelectStatic,
	}
}

// Validate rejects incompatible combinations before any platform traffic.
func (o *Options) Validate() error {
	if o.Project == "" {
		return ir.Errorf(ir.ConfigurationError, "a destination project is required")
	}
	switch o.Conflicts {
	case ConflictArchive, ConflictForceDelete, ConflictStrict:
	default:
		return ir.Errorf(ir.ConfigurationError, "unknown conflict policy %q", o.Conflicts)
	}
	switch o.InstanceTypeSelection {
	case SelectStatic, SelectDynamic:
	default:
		return ir.Errorf(ir.ConfigurationError, "unknown instance type selection %q", o.InstanceTypeSelection)
	}
	if o.ScatterChunkSize < 0 {
		return ir.Errorf(ir.ConfigurationError, "scatter chunk size must not be negative")
	}
	if o.Reorg && o.Extras != nil && o.Extras.CustomReorg != nil {
		return ir.Errorf(ir.ConfigurationError, "reorg cannot be combined with a custom reorg applet in extras")
	}
	return nil
}

// Extras mirrors the optional extras file: runtime attribute defaults,
// per-task overrides, and a custom reorg applet.
type Extras struct {
	DefaultRuntimeAttrs *RuntimeAttrs           `yaml:"defaultRuntimeAttrs" json:"defaultRuntimeAttrs"`
	PerTaskAttrs        map[string]RuntimeAttrs `yaml:"perTaskDxAttributes" json:"perTaskDxAttributes"`
	CustomReorg         *CustomReorg            `yaml:"customReorgAttributes" json:"customReorgAttributes"`
	IgnoreReuse         bool                    `yaml:"ignoreReuse" json:"ignoreReuse"`
}

// CustomReorg points at a user-supplied reorg applet.
type CustomReorg struct {
	AppletID string `yaml:"appId" json:"appId"`
	Config   string `yaml:"conf" json:"conf"`
}

// LoadExtras reads an extras file. JSON is a YAML subset, so one parser
// serves both formats.
func LoadExtras(path string) (*Extras, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read extras: %w", err)
	}
	var ex Extras
	if err := yaml.Unmarshal(data, &ex); err != nil {
		return nil, ir.WrapError(ir.ConfigurationError, err, "parse extras %s", path)
	}
	return &ex, nil
}
