// Package compiler orchestrates the pipeline: parse, translate, plan.
package compiler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/objdir"
	"github.com/me/dxcompiler/internal/plan"
	"github.com/me/dxcompiler/internal/translate"
	"github.com/me/dxcompiler/pkg/dx"
	"github.com/me/dxcompiler/pkg/ir"
)

// Version is the compiler version embedded in every built object.
const Version = "0.9.0"

// Result is the outcome of one compilation.
type Result struct {
	// Primary is the entry-point executable, when the source has one.
	Primary *plan.CompiledExecutable
	// Executables holds every planned callable by name.
	Executables map[string]*plan.CompiledExecutable
	// Bundle is the sealed IR the plan was derived from.
	Bundle *ir.Bundle
}

// Compiler ties the pipeline together for one options set.
type Compiler struct {
	api    dx.API
	opts   config.Options
	logger *slog.Logger

	tmpDir string
}

// New creates a compiler.
func New(api dx.API, opts config.Options, logger *slog.Logger) (*Compiler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Compiler{
		api:    api,
		opts:   opts,
		logger: logger.With("component", "compiler"),
	}, nil
}

// CompileFile reads, parses, translates, and plans one source document.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ir.WrapError(ir.ConfigurationError, err, "reading %s", path)
	}

	tag := c.opts.Language
	if tag == "" {
		tag = LanguageForPath(path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return c.Compile(ctx, tag, data, name)
}

// Compile runs the pipeline on in-memory source.
func (c *Compiler) Compile(ctx context.Context, languageTag string, source []byte, name string) (*Result, error) {
	defer c.cleanup()

	fe, err := lang.Lookup(languageTag)
	if err != nil {
		return nil, err
	}
	mod, err := fe.Parse(source, name)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("parsed module", "name", mod.Name, "language", languageTag,
		"tasks", len(mod.Tasks), "workflows", len(mod.Workflows))

	bundle, err := translate.Apply(mod, fe.Oracle(), c.opts, c.logger)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sealed bundle", "callables", len(bundle.Callables), "order", bundle.Dependencies)

	return c.Plan(ctx, bundle)
}

// Plan builds or reuses every callable of a sealed bundle.
func (c *Compiler) Plan(ctx context.Context, bundle *ir.Bundle) (*Result, error) {
	dir := objdir.New(c.api, c.opts.Project, c.opts.Folder, c.opts.ProjectWideReuse, c.logger)

	var cache *objdir.Cache
	if c.opts.CacheDB != "" {
		var err error
		cache, err = objdir.OpenCache(c.opts.CacheDB, c.logger)
		if err != nil {
			c.logger.Warn("build cache disabled", "error", err)
		} else {
			defer cache.Close()
		}
	}

	planner := plan.New(c.api, dir, cache, c.opts, Version, c.logger)
	execs, err := planner.Apply(ctx, bundle)
	if err != nil {
		return nil, err
	}

	res := &Result{Executables: execs, Bundle: bundle}
	if bundle.Primary != nil {
		res.Primary = execs[bundle.Primary.CallableName()]
	}
	return res, nil
}

// TempDir lazily creates the compilation scratch directory; it is removed by
// cleanup on every path out of Compile.
func (c *Compiler) TempDir() (string, error) {
	if c.tmpDir != "" {
		return c.tmpDir, nil
	}
	dir := filepath.Join(os.TempDir(), "dxcompiler-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ir.WrapError(ir.Internal, err, "creating temp dir")
	}
	c.tmpDir = dir
	return dir, nil
}

func (c *Compiler) cleanup() {
	if c.tmpDir == "" {
		return
	}
	if err := os.RemoveAll(c.tmpDir); err != nil {
		c.logger.Warn("temp dir not removed", "dir", c.tmpDir, "error", err)
	}
	c.tmpDir = ""
}

// LanguageForPath infers the language tag from a file extension.
func LanguageForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wdl":
		return "wdl"
	case ".cwl", ".yaml", ".yml", ".json":
		return "cwl"
	default:
		return ""
	}
}
