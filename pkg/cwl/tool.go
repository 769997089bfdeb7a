package cwl

// CommandLineTool is a typed representation of a CWL CommandLineTool or
// ExpressionTool, reduced to the fields the compiler lowers.
type CommandLineTool struct {
	ID         string
	Class      string
	CWLVersion string
	Doc        string
	Label      string
	Inputs     map[string]ToolInputParam
	Outputs    map[string]ToolOutputParam

	// DockerPull or DockerLoad from a DockerRequirement, when present.
	DockerPull string
	DockerLoad string

	// Resource demands from a ResourceRequirement. Values may be numbers or
	// expression strings.
	CoresMin any
	RamMin   any
	TmpdirMin any

	// NetworkAccess is true when a NetworkAccessRequirement asks for it.
	NetworkAccess bool

	// Raw is the original document, re-serialized as the tool's stand-alone
	// source.
	Raw Document
}

// ToolInputParam is a CWL tool input parameter. Handles both shorthand
// ("read1: File") and expanded form.
type ToolInputParam struct {
	Type    any // string or structured type
	Doc     string
	Label   string
	Default any
}

// ToolOutputParam is a CWL tool output parameter.
type ToolOutputParam struct {
	Type  any
	Doc   string
	Label string
}
