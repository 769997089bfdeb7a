package translate

import (
	"strings"

	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/names"
	"github.com/me/dxcompiler/pkg/ir"
)

// translateTask lowers one task or tool to an Application.
func (t *Translator) translateTask(task *lang.Task) (*ir.Application, error) {
	inputs, err := t.taskParams(task, task.Inputs, true)
	if err != nil {
		return nil, err
	}
	outputs, err := t.taskParams(task, task.Outputs, false)
	if err != nil {
		return nil, err
	}

	instance, err := t.instanceType(task)
	if err != nil {
		return nil, err
	}
	container, err := t.containerImage(task)
	if err != nil {
		return nil, err
	}

	kind := ir.ExecKind(ir.KindApplet{})
	if task.Native != nil {
		kind = *task.Native
	}

	app := &ir.Application{
		Name:       task.Name,
		Inputs:     inputs,
		Outputs:    outputs,
		Instance:   instance,
		Container:  container,
		Kind:       kind,
		Source:     t.sourceDoc(task.Source),
		Attributes: task.Attributes,
	}
	if t.opts.Extras != nil && t.opts.Extras.IgnoreReuse {
		app.Requirements = append(app.Requirements, ir.IgnoreReuse{})
	}
	t.logger.Debug("translated task", "name", task.Name, "inputs", len(inputs), "outputs", len(outputs))
	return app, nil
}

// taskParams lowers declared inputs or outputs to parameters. Defaults that
// const-fold and are not local paths are pinned; others are left for the
// runtime to evaluate, which demotes the parameter to optional.
func (t *Translator) taskParams(task *lang.Task, decls []lang.Decl, isInput bool) ([]ir.Parameter, error) {
	var params []ir.Parameter
	for _, d := range decls {
		encoded, err := names.Encode(d.Name)
		if err != nil {
			return nil, err
		}
		p := ir.Parameter{
			Name:  encoded,
			Type:  ir.Normalize(d.Type),
			Attrs: task.ParamAttrs[d.Name],
		}
		if isInput && d.Expr != nil {
			v, constant, err := t.oracle.TryConstEval(d.Expr, p.Type)
			if err != nil {
				return nil, err
			}
			switch {
			case constant && !isLocalPath(v):
				p.Default = v
			default:
				// Runtime evaluates the default when the caller omits it.
				p.Type = ir.EnsureOptional(p.Type)
			}
		}
		params = append(params, p)
	}
	return params, nil
}

// isLocalPath rejects defaults that point into the submitter's filesystem;
// they would be meaningless on the platform.
func isLocalPath(v ir.Value) bool {
	uri := ""
	switch vv := v.(type) {
	case ir.VFile:
		uri = vv.URI
	case ir.VFolder:
		uri = vv.URI
	default:
		return false
	}
	if strings.Contains(uri, "://") || strings.HasPrefix(uri, "dx:") {
		return false
	}
	return true
}

// containerImage classifies the task's container reference.
func (t *Translator) containerImage(task *lang.Task) (ir.ContainerImage, error) {
	expr := task.Runtime.Container
	if expr == nil {
		if t.opts.DefaultRuntimeAttrs.Docker != "" {
			return classifyImage(t.opts.DefaultRuntimeAttrs.Docker), nil
		}
		return ir.NoImage{}, nil
	}
	v, constant, err := t.oracle.TryConstEval(expr, ir.TString{})
	if err != nil {
		return nil, err
	}
	if !constant {
		// The runtime resolves the reference; compile it as a network pull.
		return ir.NetworkImage{Ref: t.oracle.Render(expr)}, nil
	}
	s, ok := v.(ir.VString)
	if !ok {
		return nil, ir.Errorf(ir.TypeError, "task %s: container reference must be a string", task.Name)
	}
	return classifyImage(s.Value), nil
}

// classifyImage splits platform-file image URIs from registry references.
func classifyImage(ref string) ir.ContainerImage {
	if strings.HasPrefix(ref, "dx://") {
		return ir.PlatformFileImage{URI: ref}
	}
	return ir.NetworkImage{Ref: ref}
}

func (t *Translator) sourceDoc(text string) ir.SourceDocument {
	return ir.SourceDocument{
		Language: t.mod.Language,
		Text:     text,
		Version:  t.mod.Version,
	}
}
