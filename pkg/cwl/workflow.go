package cwl

// Workflow is a typed representation of a CWL Workflow document.
type Workflow struct {
	ID         string
	Class      string
	CWLVersion string
	Doc        string
	Inputs     map[string]InputParam
	Outputs    map[string]OutputParam
	Steps      map[string]Step
	// StepOrder preserves the document order of steps.
	StepOrder []string
	// Raw is the original document, re-serialized as the workflow's
	// stand-alone source.
	Raw Document
}

// InputParam is a normalized CWL workflow input. Handles both shorthand
// ("reads_r1: File") and expanded form.
type InputParam struct {
	Type    any
	Doc     string
	Default any
}

// OutputParam is a CWL workflow output.
type OutputParam struct {
	Type         any
	OutputSource string
	Doc          string
}

// Step is a CWL workflow step.
type Step struct {
	Run     string
	In      map[string]StepInput
	InOrder []string
	Out     []string
	Scatter []string
	When    string
}

// StepInput is a normalized CWL step input. Handles both shorthand
// ("read1: reads_r1") and expanded form.
type StepInput struct {
	Source    string
	Default   any
	ValueFrom string
}
