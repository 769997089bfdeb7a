// Package objdir indexes the executables already published in the target
// folder, so the planner can reuse, archive, or delete them by digest.
package objdir

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/me/dxcompiler/pkg/dx"
	"github.com/me/dxcompiler/pkg/ir"
)

// Record is one existing platform object, keyed by name with its digest.
type Record struct {
	Name    string
	ID      string
	Digest  string
	Created time.Time
	Folder  string
	Class   string // "applet" or "workflow"
}

// Directory caches the target folder's objects for one compilation. The cache
// is read lazily on first use; archive and remove are platform side effects
// applied through the directory so the cache stays consistent.
type Directory struct {
	api         dx.API
	project     string
	folder      string
	projectWide bool
	logger      *slog.Logger

	populated bool
	byName    map[string][]Record
}

// New creates a directory over the target project and folder. When
// projectWide is set, lookups extend beyond the folder to the whole project.
func New(api dx.API, project, folder string, projectWide bool, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		api:         api,
		project:     project,
		folder:      folder,
		projectWide: projectWide,
		logger:      logger.With("component", "objdir"),
		byName:      make(map[string][]Record),
	}
}

// populate runs the one find query: every applet and workflow in scope that
// carries the checksum property.
func (d *Directory) populate(ctx context.Context) error {
	if d.populated {
		return nil
	}
	q := dx.FindQuery{
		Project:  d.project,
		Folder:   d.folder,
		Recurse:  false,
		Property: dx.ChecksumProperty,
		Classes:  []string{"applet", "workflow"},
	}
	if d.projectWide {
		q.Folder = ""
	}
	objs, err := d.api.FindDataObjects(ctx, q)
	if err != nil {
		return ir.WrapError(ir.PlatformError, err, "listing existing executables in %s", d.project)
	}
	for _, o := range objs {
		rec := Record{
			Name:    o.Name,
			ID:      o.ID,
			Digest:  o.Properties[dx.ChecksumProperty],
			Created: o.Created,
			Folder:  o.Folder,
			Class:   o.Class,
		}
		d.byName[o.Name] = append(d.byName[o.Name], rec)
	}
	for name := range d.byName {
		recs := d.byName[name]
		sort.Slice(recs, func(i, j int) bool { return recs[i].Created.After(recs[j].Created) })
	}
	d.populated = true
	d.logger.Debug("directory populated", "names", len(d.byName), "objects", len(objs))
	return nil
}

// LookupInProject finds a reusable object: an exact name and digest match,
// preferring entries in the target folder, then the most recently created.
func (d *Directory) LookupInProject(ctx context.Context, name, digest string) (*Record, error) {
	if err := d.populate(ctx); err != nil {
		return nil, err
	}
	var candidates []Record
	for _, rec := range d.byName[name] {
		if rec.Digest == digest {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		inFolderI := candidates[i].Folder == d.folder
		inFolderJ := candidates[j].Folder == d.folder
		if inFolderI != inFolderJ {
			return inFolderI
		}
		return candidates[i].Created.After(candidates[j].Created)
	})
	rec := candidates[0]
	return &rec, nil
}

// Lookup returns every record under a name, newest first.
func (d *Directory) Lookup(ctx context.Context, name string) ([]Record, error) {
	if err := d.populate(ctx); err != nil {
		return nil, err
	}
	return d.byName[name], nil
}

// Archive moves records into the folder's archive subfolder and drops them
// from the cache.
func (d *Directory) Archive(ctx context.Context, records []Record) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := d.api.ArchiveObjects(ctx, d.project, d.folder, ids); err != nil {
		return ir.WrapError(ir.PlatformError, err, "archiving %d objects", len(ids))
	}
	d.drop(records)
	d.logger.Debug("archived", "count", len(ids))
	return nil
}

// Remove permanently deletes records and drops them from the cache.
func (d *Directory) Remove(ctx context.Context, records []Record) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := d.api.RemoveObjects(ctx, d.project, ids); err != nil {
		return ir.WrapError(ir.PlatformError, err, "removing %d objects", len(ids))
	}
	d.drop(records)
	d.logger.Debug("removed", "count", len(ids))
	return nil
}

// Insert records a newly built object so later callables in the same
// compilation can find it.
func (d *Directory) Insert(name, id, digest, class string) {
	rec := Record{
		Name:    name,
		ID:      id,
		Digest:  digest,
		Created: time.Now(),
		Folder:  d.folder,
		Class:   class,
	}
	d.byName[name] = append([]Record{rec}, d.byName[name]...)
}

func (d *Directory) drop(records []Record) {
	gone := make(map[string]bool, len(records))
	for _, rec := range records {
		gone[rec.ID] = true
	}
	for name, recs := range d.byName {
		var kept []Record
		for _, rec := range recs {
			if !gone[rec.ID] {
				kept = append(kept, rec)
			}
		}
		d.byName[name] = kept
	}
}
