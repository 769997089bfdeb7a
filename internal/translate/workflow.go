package translate

import (
	"fmt"

	"github.com/me/dxcompiler/internal/blocks"
	"github.com/me/dxcompiler/internal/closure"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/names"
	"github.com/me/dxcompiler/pkg/ir"
)

// Reserved stage ids for the generated helper stages.
const (
	stageCommon  = "stage-common"
	stageOutputs = "stage-outputs"
	stageReorg   = "stage-reorg"
)

// wfTranslator carries the state of one workflow lowering: the environment
// mapping every reachable encoded name to the stage input that produces it.
type wfTranslator struct {
	*Translator
	wf     *lang.Workflow
	locked bool
	level  ir.WorkflowLevel
	env    map[string]ir.StageInput
	stages []ir.Stage
}

// translateWorkflow lowers one workflow body into a Workflow IR node,
// generating fragment applets and sub-workflows as the block kinds demand.
func (t *Translator) translateWorkflow(wf *lang.Workflow, level ir.WorkflowLevel, locked bool) (*ir.Workflow, error) {
	if level == ir.SubLevel {
		// Only the top-level workflow may be unlocked.
		locked = true
	}
	w := &wfTranslator{
		Translator: t,
		wf:         wf,
		locked:     locked,
		level:      level,
		env:        make(map[string]ir.StageInput),
	}
	return w.lower()
}

func (w *wfTranslator) lower() (*ir.Workflow, error) {
	inputs, err := closure.InputsFromDecls(w.wf.Inputs, w.oracle)
	if err != nil {
		return nil, err
	}

	bs, err := blocks.Split(w.wf.Body, w.oracle)
	if err != nil {
		return nil, err
	}
	for _, b := range bs {
		if err := closure.Analyze(b, w.oracle, closure.Options{Sigs: w.sigs}); err != nil {
			return nil, err
		}
	}

	// Workflow inputs enter the environment first. In unlocked mode the
	// common applet rewires them below.
	for _, in := range inputs {
		w.env[in.InputName()] = ir.WorkflowLink{Param: in.InputName()}
	}

	needsCommon := !w.locked || anyDynamicDefault(inputs)
	if needsCommon {
		if err := w.emitCommonStage(inputs); err != nil {
			return nil, err
		}
	}

	var trailing []lang.Element
	for i, b := range bs {
		if b.Kind == blocks.ExpressionsOnly {
			// Only the final block can be call-free; its declarations are
			// evaluated by the outputs applet.
			trailing = append(trailing, b.Elements...)
			continue
		}
		if err := w.emitBlockStage(i, b); err != nil {
			return nil, err
		}
	}

	wfOutputs, err := w.emitOutputs(trailing)
	if err != nil {
		return nil, err
	}

	if w.level == ir.TopLevel {
		if err := w.emitReorg(wfOutputs); err != nil {
			return nil, err
		}
	}

	wfInputs := make([]ir.WorkflowIO, 0, len(inputs))
	for _, in := range inputs {
		param := paramFromInput(in)
		var src ir.StageInput = ir.EmptyInput{}
		if w.locked {
			src = ir.WorkflowLink{Param: in.InputName()}
		}
		wfInputs = append(wfInputs, ir.WorkflowIO{Param: param, Input: src})
	}

	out := &ir.Workflow{
		Name:       w.wf.Name,
		Inputs:     wfInputs,
		Outputs:    wfOutputs,
		Stages:     w.stages,
		Source:     w.sourceDoc(w.wf.Source),
		Locked:     w.locked,
		Level:      w.level,
		Attributes: w.wf.Attributes,
	}
	w.logger.Debug("translated workflow", "name", w.wf.Name, "stages", len(w.stages), "locked", w.locked)
	return out, nil
}

func anyDynamicDefault(inputs []blocks.Input) bool {
	for _, in := range inputs {
		if _, ok := in.(blocks.DynamicDefaultInput); ok {
			return true
		}
	}
	return false
}

// paramFromInput converts a block input to a parameter.
func paramFromInput(in blocks.Input) ir.Parameter {
	p := ir.Parameter{Name: in.InputName(), Type: in.InputType()}
	if sd, ok := in.(blocks.StaticDefaultInput); ok {
		p.Default = sd.Default
	}
	return p
}

// emitCommonStage prepends the applet evaluating workflow input expressions.
// Its outputs replace the workflow inputs in the environment.
func (w *wfTranslator) emitCommonStage(inputs []blocks.Input) error {
	name := w.wf.Name + "_common"
	params := make([]ir.Parameter, 0, len(inputs))
	for _, in := range inputs {
		params = append(params, paramFromInput(in))
	}
	app := &ir.Application{
		Name:    name,
		Inputs:  params,
		Outputs: params,
		Kind:    ir.KindWfCommonInputs{Path: []string{w.wf.Name}},
		Source:  w.sourceDoc(w.wf.Source),
	}
	w.callables[name] = app

	stageInputs := make([]ir.StageInput, len(params))
	for i, p := range params {
		if w.locked {
			stageInputs[i] = ir.WorkflowLink{Param: p.Name}
		} else {
			stageInputs[i] = ir.EmptyInput{}
		}
	}
	w.stages = append(w.stages, ir.Stage{
		ID:          stageCommon,
		Description: "common",
		CalleeName:  name,
		Inputs:      stageInputs,
		Outputs:     params,
	})
	for _, p := range params {
		w.env[p.Name] = ir.LinkInput{StageID: stageCommon, Param: p.Name}
	}
	return nil
}

// emitBlockStage lowers one call-bearing block to a stage, generating a
// fragment applet unless the block is a direct call.
func (w *wfTranslator) emitBlockStage(index int, b *blocks.Block) error {
	stageID := fmt.Sprintf("stage-%d", index)

	if b.Kind == blocks.CallDirect {
		call, ok := b.Call()
		if !ok {
			return ir.Errorf(ir.Internal, "direct block %d has no call", index)
		}
		return w.emitDirectStage(stageID, call)
	}
	return w.emitFragmentStage(stageID, index, b)
}

// emitDirectStage binds a trivially-called task straight to a stage.
func (w *wfTranslator) emitDirectStage(stageID string, call lang.Call) error {
	sig, ok := w.sigs[call.Callee]
	if !ok {
		return ir.Errorf(ir.Internal, "no signature for callee %q", call.Callee)
	}

	byName := make(map[string]lang.Expr, len(call.Inputs))
	for _, in := range call.Inputs {
		byName[in.Name] = in.Expr
	}

	stageInputs := make([]ir.StageInput, 0, len(sig.Inputs))
	for _, p := range sig.Inputs {
		expr, bound := byName[p.Name]
		if !bound || expr == nil {
			stageInputs = append(stageInputs, ir.EmptyInput{})
			continue
		}
		src, err := w.resolveTrivial(expr, p.Type)
		if err != nil {
			return err
		}
		stageInputs = append(stageInputs, src)
	}

	outputs := make([]ir.Parameter, 0, len(sig.Outputs))
	for _, p := range sig.Outputs {
		outputs = append(outputs, ir.Parameter{Name: p.Name, Type: p.Type})
	}

	w.stages = append(w.stages, ir.Stage{
		ID:          stageID,
		Description: call.CallAlias(),
		CalleeName:  call.Callee,
		Inputs:      stageInputs,
		Outputs:     outputs,
	})

	// Publish alias.output names for downstream stages.
	for _, p := range sig.Outputs {
		encoded, err := names.Encode(call.CallAlias(), decodeOrSelf(p.Name))
		if err != nil {
			return err
		}
		w.env[encoded] = ir.LinkInput{StageID: stageID, Param: p.Name}
	}
	return nil
}

// emitFragmentStage generates the runtime helper applet for a block and the
// stage invoking it. Complex conditional and scatter bodies are first lowered
// to a locked sub-workflow the fragment launches.
func (w *wfTranslator) emitFragmentStage(stageID string, index int, b *blocks.Block) error {
	fragName := fmt.Sprintf("%s_frag_%d", w.wf.Name, index)

	calleeNames, scatterVar, chunk, err := w.fragmentCallees(index, b)
	if err != nil {
		return err
	}

	inParams := make([]ir.Parameter, 0, len(b.Inputs))
	for _, in := range b.Inputs {
		inParams = append(inParams, paramFromInput(in))
	}
	outParams := make([]ir.Parameter, 0, len(b.Outputs))
	for _, o := range b.Outputs {
		outParams = append(outParams, ir.Parameter{Name: o.Name, Type: o.Type})
	}

	app := &ir.Application{
		Name:    fragName,
		Inputs:  inParams,
		Outputs: outParams,
		Kind: ir.KindWfFragment{
			CallNames:        calleeNames,
			Path:             []string{w.wf.Name, stageID},
			ScatterVar:       scatterVar,
			ScatterChunkSize: chunk,
		},
		Source: w.sourceDoc(w.wf.Source),
	}
	w.callables[fragName] = app

	stageInputs := make([]ir.StageInput, 0, len(inParams))
	for _, p := range inParams {
		src, ok := w.env[p.Name]
		if !ok {
			return ir.Errorf(ir.Internal, "fragment %s input %q has no producer", fragName, p.Name)
		}
		stageInputs = append(stageInputs, src)
	}

	w.stages = append(w.stages, ir.Stage{
		ID:          stageID,
		Description: fragName,
		CalleeName:  fragName,
		Inputs:      stageInputs,
		Outputs:     outParams,
	})
	for _, p := range outParams {
		w.env[p.Name] = ir.LinkInput{StageID: stageID, Param: p.Name}
	}
	return nil
}

// fragmentCallees decides what a block's fragment launches: the block's own
// calls, or a generated locked sub-workflow when a conditional or scatter
// body holds more than one call.
func (w *wfTranslator) fragmentCallees(index int, b *blocks.Block) (calleeNames []string, scatterVar string, chunk int, err error) {
	last := b.Elements[len(b.Elements)-1]

	switch e := last.(type) {
	case lang.Scatter:
		scatterVar = e.Var
		chunk = w.opts.ScatterChunkSize
		if len(b.Calls()) > 1 {
			sub, err := w.lowerSubWorkflow(index, e.Body, map[string]ir.Type{e.Var: e.ItemType})
			if err != nil {
				return nil, "", 0, err
			}
			return []string{sub.Name}, scatterVar, chunk, nil
		}
	case lang.Conditional:
		if len(b.Calls()) > 1 {
			sub, err := w.lowerSubWorkflow(index, e.Body, nil)
			if err != nil {
				return nil, "", 0, err
			}
			return []string{sub.Name}, "", 0, nil
		}
	}

	for _, call := range b.Calls() {
		calleeNames = append(calleeNames, call.Callee)
	}
	if len(calleeNames) == 0 {
		return nil, "", 0, ir.Errorf(ir.Internal, "fragment block %d has no calls", index)
	}
	return calleeNames, scatterVar, chunk, nil
}

// lowerSubWorkflow translates a complex conditional or scatter body into a
// locked sub-workflow. Scatter variables become computed inputs the fragment
// supplies per iteration.
func (w *wfTranslator) lowerSubWorkflow(index int, body []lang.Element, computed map[string]ir.Type) (*ir.Workflow, error) {
	ins, outs, err := closure.ForElements(body, w.oracle, closure.Options{Sigs: w.sigs, ComputedVars: computed})
	if err != nil {
		return nil, err
	}

	subName := fmt.Sprintf("%s_block_%d", w.wf.Name, index)
	inputDecls := make([]lang.Decl, 0, len(ins)+len(computed))
	for varName, t := range computed {
		inputDecls = append(inputDecls, lang.Decl{Name: varName, Type: t})
	}
	for _, in := range ins {
		if _, isComputed := computed[in.InputName()]; isComputed {
			continue
		}
		dotted, err := names.DecodeDotted(in.InputName())
		if err != nil {
			return nil, err
		}
		inputDecls = append(inputDecls, lang.Decl{Name: dotted, Type: in.InputType()})
	}
	outputDecls := make([]lang.Decl, 0, len(outs))
	for _, o := range outs {
		dotted, err := names.DecodeDotted(o.Name)
		if err != nil {
			return nil, err
		}
		outputDecls = append(outputDecls, lang.Decl{Name: dotted, Type: o.Type, Expr: o.Expr})
	}

	sub := &lang.Workflow{
		Name:    subName,
		Inputs:  inputDecls,
		Body:    body,
		Outputs: outputDecls,
		Locked:  true,
		Source:  w.wf.Source,
	}

	sig, err := signatureFromDecls(inputDecls, outputDecls)
	if err != nil {
		return nil, err
	}
	w.sigs[subName] = sig

	subIR, err := w.Translator.translateWorkflow(sub, ir.SubLevel, true)
	if err != nil {
		return nil, err
	}
	w.callables[subName] = subIR
	return subIR, nil
}

// emitOutputs builds the workflow's output bindings, inserting the outputs
// applet whenever an output needs evaluation (always in unlocked mode).
func (w *wfTranslator) emitOutputs(trailing []lang.Element) ([]ir.WorkflowIO, error) {
	needApplet := !w.locked || len(trailing) > 0
	if !needApplet {
		for _, d := range w.wf.Outputs {
			if d.Expr != nil && !w.oracle.IsTrivial(d.Expr) {
				needApplet = true
				break
			}
		}
	}

	if !needApplet {
		outs := make([]ir.WorkflowIO, 0, len(w.wf.Outputs))
		for _, d := range w.wf.Outputs {
			encoded, err := names.EncodeDotted(d.Name)
			if err != nil {
				return nil, err
			}
			param := ir.Parameter{Name: encoded, Type: ir.Normalize(d.Type)}
			var src ir.StageInput
			if d.Expr == nil {
				src = w.env[encoded]
				if src == nil {
					return nil, ir.Errorf(ir.ClosureError, "workflow output %q has no producer", d.Name)
				}
			} else {
				resolved, err := w.resolveTrivial(d.Expr, param.Type)
				if err != nil {
					return nil, err
				}
				src = resolved
			}
			outs = append(outs, ir.WorkflowIO{Param: param, Input: src})
		}
		return outs, nil
	}

	// The outputs applet evaluates trailing declarations and output
	// expressions; its closure decides what it reads.
	elems := append(append([]lang.Element{}, trailing...), declsToElements(w.wf.Outputs)...)
	ins, _, err := closure.ForElements(elems, w.oracle, closure.Options{Sigs: w.sigs})
	if err != nil {
		return nil, err
	}

	name := w.wf.Name + "_outputs"
	inParams := make([]ir.Parameter, 0, len(ins))
	stageInputs := make([]ir.StageInput, 0, len(ins))
	for _, in := range ins {
		src, ok := w.env[in.InputName()]
		if !ok {
			return nil, ir.Errorf(ir.ClosureError, "workflow output reads %q which nothing produces", in.InputName())
		}
		inParams = append(inParams, paramFromInput(in))
		stageInputs = append(stageInputs, src)
	}

	outParams := make([]ir.Parameter, 0, len(w.wf.Outputs))
	for _, d := range w.wf.Outputs {
		encoded, err := names.EncodeDotted(d.Name)
		if err != nil {
			return nil, err
		}
		outParams = append(outParams, ir.Parameter{Name: encoded, Type: ir.Normalize(d.Type)})
	}

	app := &ir.Application{
		Name:    name,
		Inputs:  inParams,
		Outputs: outParams,
		Kind:    ir.KindWfOutputs{Path: []string{w.wf.Name}},
		Source:  w.sourceDoc(w.wf.Source),
	}
	w.callables[name] = app

	w.stages = append(w.stages, ir.Stage{
		ID:          stageOutputs,
		Description: "outputs",
		CalleeName:  name,
		Inputs:      stageInputs,
		Outputs:     outParams,
	})

	outs := make([]ir.WorkflowIO, 0, len(outParams))
	for _, p := range outParams {
		outs = append(outs, ir.WorkflowIO{
			Param: p,
			Input: ir.LinkInput{StageID: stageOutputs, Param: p.Name},
		})
	}
	return outs, nil
}

// emitReorg appends the reorg stage when configured: the built-in reorg
// applet under the reorg flag, or the user's applet from extras.
func (w *wfTranslator) emitReorg(wfOutputs []ir.WorkflowIO) error {
	custom := w.opts.Extras != nil && w.opts.Extras.CustomReorg != nil
	if !w.opts.Reorg && !custom {
		return nil
	}

	name := w.wf.Name + "_reorg"
	var kind ir.ExecKind = ir.KindWfCustomReorgOutputs{}
	if custom {
		kind = ir.KindWorkflowCustomReorg{AppletID: w.opts.Extras.CustomReorg.AppletID}
	}

	inParams := make([]ir.Parameter, 0, len(wfOutputs))
	stageInputs := make([]ir.StageInput, 0, len(wfOutputs))
	for _, out := range wfOutputs {
		inParams = append(inParams, out.Param)
		stageInputs = append(stageInputs, out.Input)
	}

	app := &ir.Application{
		Name:   name,
		Inputs: inParams,
		Kind:   kind,
		Source: w.sourceDoc(w.wf.Source),
	}
	w.callables[name] = app

	w.stages = append(w.stages, ir.Stage{
		ID:          stageReorg,
		Description: "reorg",
		CalleeName:  name,
		Inputs:      stageInputs,
	})
	return nil
}

// resolveTrivial maps a trivial expression onto a stage input: constants
// become static values, single references follow the environment.
func (w *wfTranslator) resolveTrivial(expr lang.Expr, hint ir.Type) (ir.StageInput, error) {
	if v, constant, err := w.oracle.TryConstEval(expr, hint); err == nil && constant {
		coerced, err := ir.Coerce(v, hint)
		if err != nil {
			return nil, err
		}
		return ir.StaticInput{Value: coerced}, nil
	}
	refs := w.oracle.FreeVariables(expr, hint, true)
	if len(refs) == 1 && w.oracle.IsTrivial(expr) {
		segs := refs[0].Path
		if refs[0].Field != "" {
			segs = append(append([]string{}, segs...), refs[0].Field)
		}
		encoded, err := names.Encode(segs...)
		if err != nil {
			return nil, err
		}
		if src, ok := w.env[encoded]; ok {
			return src, nil
		}
		return nil, ir.Errorf(ir.ClosureError, "reference %q has no producer", encoded)
	}
	return nil, ir.Errorf(ir.Internal, "expression %q is not trivial", w.oracle.Render(expr))
}

func declsToElements(decls []lang.Decl) []lang.Element {
	elems := make([]lang.Element, len(decls))
	for i, d := range decls {
		elems[i] = d
	}
	return elems
}

// decodeOrSelf maps an encoded signature name back to its source segment for
// alias-qualified re-encoding; already-plain names pass through.
func decodeOrSelf(encoded string) string {
	segs, err := names.Decode(encoded)
	if err != nil || len(segs) != 1 {
		return encoded
	}
	return segs[0]
}
