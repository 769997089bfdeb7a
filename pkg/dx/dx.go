// Package dx is the compiler's window onto the execution platform: the API
// interface the core consumes, wire types, and reserved key constants.
package dx

import (
	"context"
	"time"
)

// Reserved keys the compiler writes on built objects.
const (
	// ChecksumProperty holds the build-request digest; the object directory
	// queries by presence of this property.
	ChecksumProperty = "dxCompiler_checksum"
	// VersionProperty holds the compiler version that built the object.
	VersionProperty = "dxCompiler_version"
	// DetailsChecksum and DetailsVersion mirror the properties inside details.
	DetailsChecksum = "checksum"
	DetailsVersion  = "version"
	// DetailsSource holds base64(gzip(stand-alone source)); excluded from the
	// digest so re-encoding source never invalidates reuse.
	DetailsSource = "sourceCode"
	// DetailsDockerImage links the saved container image file, when one is used.
	DetailsDockerImage = "dockerImage"
)

// ObjectDesc describes one platform data object.
type ObjectDesc struct {
	ID         string
	Name       string
	Class      string // "applet" or "workflow"
	Project    string
	Folder     string
	Created    time.Time
	Properties map[string]string
}

// FindQuery selects data objects carrying a given property.
type FindQuery struct {
	Project     string
	Folder      string
	Recurse     bool
	Property    string // property that must be present
	Classes     []string
	VisibleOnly bool
}

// API is every platform operation the compiler core performs. Calls are
// blocking; cancellation is cooperative through the context.
type API interface {
	// AppletNew creates an applet from a build request and returns its id.
	AppletNew(ctx context.Context, project string, req map[string]any) (string, error)
	// WorkflowNew creates a workflow from a build request and returns its id.
	WorkflowNew(ctx context.Context, project string, req map[string]any) (string, error)
	// WorkflowClose closes a workflow so it can be run.
	WorkflowClose(ctx context.Context, id string) error
	// Describe fetches the named fields of an object.
	Describe(ctx context.Context, id string, fields []string) (map[string]any, error)
	// FindDataObjects lists objects matching the query.
	FindDataObjects(ctx context.Context, q FindQuery) ([]ObjectDesc, error)
	// ResolvePath resolves a project path to matching objects.
	ResolvePath(ctx context.Context, project, path string) ([]ObjectDesc, error)
	// ArchiveObjects moves objects into the folder's archive subfolder,
	// renaming them out of the way of a rebuild.
	ArchiveObjects(ctx context.Context, project, folder string, ids []string) error
	// RemoveObjects permanently deletes objects from a project.
	RemoveObjects(ctx context.Context, project string, ids []string) error
}
