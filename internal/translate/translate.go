// Package translate lowers typed tasks and workflows into the IR bundle the
// planner builds from.
package translate

import (
	"log/slog"
	"sort"

	"github.com/me/dxcompiler/internal/closure"
	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/names"
	"github.com/me/dxcompiler/pkg/ir"
)

// Translator lowers one module. It accumulates callables as workflows
// generate fragments and sub-workflows.
type Translator struct {
	mod       *lang.Module
	oracle    lang.Oracle
	opts      config.Options
	logger    *slog.Logger
	callables map[string]ir.Callable
	sigs      map[string]closure.Signature
}

// Apply translates a whole module into a sealed bundle.
func Apply(mod *lang.Module, oracle lang.Oracle, opts config.Options, logger *slog.Logger) (*ir.Bundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Translator{
		mod:       mod,
		oracle:    oracle,
		opts:      opts,
		logger:    logger.With("component", "translate"),
		callables: make(map[string]ir.Callable),
		sigs:      make(map[string]closure.Signature),
	}

	if err := t.buildSignatures(); err != nil {
		return nil, err
	}

	for _, name := range sortedTaskNames(mod.Tasks) {
		app, err := t.translateTask(mod.Tasks[name])
		if err != nil {
			return nil, err
		}
		t.callables[app.Name] = app
	}

	var primary ir.Callable
	if mod.Primary != nil {
		wf, err := t.translateWorkflow(mod.Primary, ir.TopLevel, t.opts.Locked || mod.Primary.Locked)
		if err != nil {
			return nil, err
		}
		t.callables[wf.Name] = wf
		primary = wf
	} else if len(mod.Tasks) == 1 {
		for name := range mod.Tasks {
			primary = t.callables[name]
		}
	}

	aliases := make(map[string]ir.TSchema, len(mod.Schemas))
	for name, schema := range mod.Schemas {
		aliases[name] = schema
	}
	return ir.NewBundle(primary, t.callables, aliases)
}

// buildSignatures exposes every task's and workflow's I/O to the closure
// analyzer before any body is lowered.
func (t *Translator) buildSignatures() error {
	for name, task := range t.mod.Tasks {
		sig, err := signatureFromDecls(task.Inputs, task.Outputs)
		if err != nil {
			return err
		}
		t.sigs[name] = sig
	}
	for name, wf := range t.mod.Workflows {
		sig, err := signatureFromDecls(wf.Inputs, wf.Outputs)
		if err != nil {
			return err
		}
		t.sigs[name] = sig
	}
	return nil
}

func signatureFromDecls(inputs, outputs []lang.Decl) (closure.Signature, error) {
	var sig closure.Signature
	for _, d := range inputs {
		encoded, err := names.EncodeDotted(d.Name)
		if err != nil {
			return sig, err
		}
		sig.Inputs = append(sig.Inputs, closure.Param{
			Name:     encoded,
			Type:     ir.Normalize(d.Type),
			Optional: ir.IsOptional(d.Type) || d.Expr != nil,
		})
	}
	for _, d := range outputs {
		encoded, err := names.EncodeDotted(d.Name)
		if err != nil {
			return sig, err
		}
		sig.Outputs = append(sig.Outputs, closure.Param{
			Name: encoded,
			Type: ir.Normalize(d.Type),
		})
	}
	return sig, nil
}

func sortedTaskNames(tasks map[string]*lang.Task) []string {
	out := make([]string, 0, len(tasks))
	for name := range tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
