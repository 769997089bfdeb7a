// Package plan walks a sealed bundle in dependency order and decides, per
// callable, whether to reuse an existing platform object or build a new one.
package plan

import (
	"context"
	"log/slog"

	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/internal/digest"
	"github.com/me/dxcompiler/internal/objdir"
	"github.com/me/dxcompiler/pkg/dx"
	"github.com/me/dxcompiler/pkg/ir"
)

// CompiledExecutable records one planned callable and the platform object
// backing it.
type CompiledExecutable struct {
	Callable ir.Callable
	ID       string
	Digest   string
	// Reused is true when the planner found a matching existing object.
	Reused bool
}

// Planner builds or reuses every callable of a bundle. It is single-threaded
// and deterministic given the same bundle and directory state.
type Planner struct {
	api     dx.API
	dir     *objdir.Directory
	cache   *objdir.Cache // optional
	opts    config.Options
	version string
	logger  *slog.Logger

	results map[string]*CompiledExecutable
}

// New creates a planner. cache may be nil.
func New(api dx.API, dir *objdir.Directory, cache *objdir.Cache, opts config.Options, compilerVersion string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		api:     api,
		dir:     dir,
		cache:   cache,
		opts:    opts,
		version: compilerVersion,
		logger:  logger.With("component", "plan"),
		results: make(map[string]*CompiledExecutable),
	}
}

// Apply plans every callable in bundle dependency order. On failure at
// callable k, callables before k remain built and reusable next compile.
func (p *Planner) Apply(ctx context.Context, bundle *ir.Bundle) (map[string]*CompiledExecutable, error) {
	for _, name := range bundle.Dependencies {
		callable, ok := bundle.Callables[name]
		if !ok {
			return nil, ir.Errorf(ir.Internal, "dependency %q missing from callables", name)
		}
		exec, err := p.maybeBuild(ctx, callable)
		if err != nil {
			return nil, err
		}
		p.results[name] = exec
	}
	return p.results, nil
}

// maybeBuild renders, digests, and reuses-or-builds one callable.
func (p *Planner) maybeBuild(ctx context.Context, callable ir.Callable) (*CompiledExecutable, error) {
	if app, ok := callable.(*ir.Application); ok {
		if native, ok := app.Kind.(ir.KindNative); ok {
			return p.resolveNative(ctx, app, native)
		}
	}

	req, class, err := p.render(callable)
	if err != nil {
		return nil, err
	}
	req, hexDigest, err := digest.Request(req, p.version)
	if err != nil {
		return nil, ir.WrapError(ir.Internal, err, "digesting %s", callable.CallableName())
	}
	name := callable.CallableName()
	logger := p.logger.With("callable", name, "digest", hexDigest)

	if p.cache != nil {
		id, err := p.cache.Get(ctx, p.opts.Project, p.opts.Folder, name, hexDigest)
		if err != nil {
			logger.Warn("build cache unavailable", "error", err)
		} else if id != "" {
			logger.Debug("reusing from local cache", "id", id)
			return &CompiledExecutable{Callable: callable, ID: id, Digest: hexDigest, Reused: true}, nil
		}
	}

	if match, err := p.dir.LookupInProject(ctx, name, hexDigest); err != nil {
		return nil, err
	} else if match != nil {
		logger.Debug("reusing existing executable", "id", match.ID)
		p.recordCache(ctx, name, hexDigest, match.ID, match.Class)
		return &CompiledExecutable{Callable: callable, ID: match.ID, Digest: hexDigest, Reused: true}, nil
	}

	stale, err := p.dir.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		switch p.opts.Conflicts {
		case config.ConflictArchive:
			logger.Info("archiving stale executables", "count", len(stale))
			if err := p.dir.Archive(ctx, stale); err != nil {
				return nil, err
			}
		case config.ConflictForceDelete:
			logger.Info("deleting stale executables", "count", len(stale))
			if err := p.dir.Remove(ctx, stale); err != nil {
				return nil, err
			}
		case config.ConflictStrict:
			return nil, ir.Errorf(ir.ExecutableConflictError,
				"%s already exists in %s%s with a different checksum", name, p.opts.Project, p.opts.Folder)
		}
	}

	id, err := p.build(ctx, class, req)
	if err != nil {
		return nil, ir.WrapError(ir.PlatformError, err, "building %s", name)
	}
	logger.Info("built executable", "id", id, "class", class)
	p.dir.Insert(name, id, hexDigest, class)
	p.recordCache(ctx, name, hexDigest, id, class)
	return &CompiledExecutable{Callable: callable, ID: id, Digest: hexDigest}, nil
}

func (p *Planner) build(ctx context.Context, class string, req map[string]any) (string, error) {
	if class == "workflow" {
		id, err := p.api.WorkflowNew(ctx, p.opts.Project, req)
		if err != nil {
			return "", err
		}
		if !p.opts.LeaveWorkflowsOpen {
			if err := p.api.WorkflowClose(ctx, id); err != nil {
				return "", err
			}
		}
		return id, nil
	}
	return p.api.AppletNew(ctx, p.opts.Project, req)
}

// render produces the build request and object class for a callable.
func (p *Planner) render(callable ir.Callable) (map[string]any, string, error) {
	switch c := callable.(type) {
	case *ir.Application:
		req, err := renderApplet(c, p.opts.Folder)
		return req, "applet", err
	case *ir.Workflow:
		req, err := renderWorkflow(c, p.opts.Folder, p.resolveID, p.calleeInputs)
		return req, "workflow", err
	default:
		return nil, "", ir.Errorf(ir.Internal, "unplannable callable %T", callable)
	}
}

// resolveID finds the platform id of an already-planned callee. Dependency
// ordering guarantees it exists.
func (p *Planner) resolveID(name string) (string, error) {
	exec, ok := p.results[name]
	if !ok {
		return "", ir.Errorf(ir.Internal, "callee %q not planned before its caller", name)
	}
	return exec.ID, nil
}

func (p *Planner) calleeInputs(name string) ([]ir.Parameter, error) {
	exec, ok := p.results[name]
	if !ok {
		return nil, ir.Errorf(ir.Internal, "callee %q not planned before its caller", name)
	}
	return exec.Callable.InputParams(), nil
}

// resolveNative looks up an executable we do not build.
func (p *Planner) resolveNative(ctx context.Context, app *ir.Application, native ir.KindNative) (*CompiledExecutable, error) {
	if native.ID != "" {
		return &CompiledExecutable{Callable: app, ID: native.ID, Reused: true}, nil
	}
	path := native.Path
	if path == "" {
		path = native.Name
	}
	matches, err := p.api.ResolvePath(ctx, p.opts.Project, path)
	if err != nil {
		return nil, ir.WrapError(ir.PlatformError, err, "resolving native executable %q", path)
	}
	if len(matches) == 0 {
		return nil, ir.Errorf(ir.PlatformError, "native executable %q not found in %s", path, p.opts.Project)
	}
	return &CompiledExecutable{Callable: app, ID: matches[0].ID, Reused: true}, nil
}

func (p *Planner) recordCache(ctx context.Context, name, hexDigest, id, class string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, p.opts.Project, p.opts.Folder, name, hexDigest, id, class); err != nil {
		p.logger.Warn("build cache write failed", "error", err)
	}
}
