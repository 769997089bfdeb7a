// Package names maps source-language identifiers, which may carry namespace
// dots and characters the platform rejects, onto platform-safe parameter
// names and back. The encoding is injective and reversible.
package names

import (
	"strings"

	"github.com/me/dxcompiler/pkg/ir"
)

// Sep joins namespace segments in encoded names. Segments may contain single
// underscores but never consecutive ones and never end with one, so the
// separator cannot occur inside a segment or straddle a segment boundary.
const Sep = "___"

// Encode joins identifier path segments into one platform-safe name.
// Each segment must be a legal source identifier; returns NameError otherwise.
func Encode(segments ...string) (string, error) {
	if len(segments) == 0 {
		return "", ir.Errorf(ir.NameError, "empty identifier path")
	}
	for _, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, Sep), nil
}

// EncodeDotted encodes a dotted source name such as "stage.out".
func EncodeDotted(name string) (string, error) {
	return Encode(strings.Split(name, ".")...)
}

// Decode splits an encoded name back into its source segments.
func Decode(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, ir.Errorf(ir.NameError, "empty encoded name")
	}
	segments := strings.Split(encoded, Sep)
	for _, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return nil, ir.WrapError(ir.NameError, err, "encoded name %q decodes ambiguously", encoded)
		}
	}
	return segments, nil
}

// DecodeDotted reverses EncodeDotted.
func DecodeDotted(encoded string) (string, error) {
	segments, err := Decode(encoded)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "."), nil
}

// checkSegment enforces the segment grammar: starts with a letter or
// underscore, contains only [A-Za-z0-9_], never two underscores in a row, and
// does not end with an underscore.
func checkSegment(seg string) error {
	if seg == "" {
		return ir.Errorf(ir.NameError, "empty identifier segment")
	}
	prev := byte(0)
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return ir.Errorf(ir.NameError, "identifier %q starts with a digit", seg)
			}
		default:
			return ir.Errorf(ir.NameError, "identifier %q contains illegal character %q", seg, string(c))
		}
		if c == '_' && prev == '_' {
			return ir.Errorf(ir.NameError, "identifier %q contains consecutive underscores", seg)
		}
		prev = c
	}
	if prev == '_' {
		return ir.Errorf(ir.NameError, "identifier %q ends with an underscore", seg)
	}
	return nil
}
