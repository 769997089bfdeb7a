package ir

import (
	"fmt"
	"strings"
)

// Value is the language-neutral value model, mirroring Type plus Null and the
// unmaterialized directory forms.
type Value interface {
	valueNode()
}

type (
	// VNull is the absent value; it fits any optional type.
	VNull struct{}

	VBoolean struct{ Value bool }
	VInt     struct{ Value int64 }
	VFloat   struct{ Value float64 }
	VString  struct{ Value string }

	// VFile references a file by URI, optionally carrying metadata the
	// runtime uses to avoid re-describing it.
	VFile struct {
		URI            string
		Basename       string
		Contents       string
		Checksum       string
		Size           int64
		SecondaryFiles []Value
	}

	// VFolder references a materialized directory by URI.
	VFolder struct {
		URI      string
		Basename string
	}

	// VArchive references a packed directory (tarball) by URI.
	VArchive struct {
		URI      string
		Basename string
	}

	// VListing is an unmaterialized directory: a basename plus items that
	// will be laid out under it at localization time.
	VListing struct {
		Basename string
		Items    []Value
	}

	VArray struct{ Items []Value }

	// VHash is an ordered name → value record.
	VHash struct{ Fields []HashField }
)

// HashField is one entry of a VHash; order is preserved.
type HashField struct {
	Name  string
	Value Value
}

func (VNull) valueNode()    {}
func (VBoolean) valueNode() {}
func (VInt) valueNode()     {}
func (VFloat) valueNode()   {}
func (VString) valueNode()  {}
func (VFile) valueNode()    {}
func (VFolder) valueNode()  {}
func (VArchive) valueNode() {}
func (VListing) valueNode() {}
func (VArray) valueNode()   {}
func (VHash) valueNode()    {}

// Get returns the value for a field name, if present.
func (h VHash) Get(name string) (Value, bool) {
	for _, f := range h.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FormatValue renders a value for log and error messages.
func FormatValue(v Value) string {
	switch vv := v.(type) {
	case VNull:
		return "null"
	case VBoolean:
		return fmt.Sprintf("%t", vv.Value)
	case VInt:
		return fmt.Sprintf("%d", vv.Value)
	case VFloat:
		return fmt.Sprintf("%g", vv.Value)
	case VString:
		return fmt.Sprintf("%q", vv.Value)
	case VFile:
		return vv.URI
	case VFolder:
		return vv.URI
	case VArchive:
		return vv.URI
	case VListing:
		return vv.Basename + "/"
	case VArray:
		parts := make([]string, len(vv.Items))
		for i, item := range vv.Items {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case VHash:
		parts := make([]string, len(vv.Fields))
		for i, f := range vv.Fields {
			parts[i] = f.Name + ": " + FormatValue(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
