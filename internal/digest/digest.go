// Package digest canonicalizes build requests and computes the
// content-address used for reuse decisions.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/me/dxcompiler/pkg/dx"
)

// excludedTopLevel lists request fields that merely reposition the executable
// and must not affect the digest.
var excludedTopLevel = map[string]bool{
	"project": true,
	"folder":  true,
	"parents": true,
}

// Canonicalize renders a request in canonical JSON: keys sorted at every
// level, no insignificant whitespace. Round-tripping any JSON-equal request
// yields byte-identical output.
func Canonicalize(req map[string]any) ([]byte, error) {
	// Round-trip so every nested value becomes plain maps, slices, and
	// primitives; encoding/json then emits object keys in sorted order.
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("canonicalize round-trip: %w", err)
	}
	out, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("canonicalize re-marshal: %w", err)
	}
	return out, nil
}

// Request digests a build request and returns the request with the digest
// embedded in details, plus the hex digest itself. The digest covers the
// canonical form minus relocation fields and the embedded source, so moving
// an object or re-compressing its source never changes its address.
func Request(req map[string]any, compilerVersion string) (map[string]any, string, error) {
	stripped := make(map[string]any, len(req))
	for k, v := range req {
		if excludedTopLevel[k] {
			continue
		}
		stripped[k] = v
	}
	if details, ok := stripped["details"].(map[string]any); ok {
		cleaned := make(map[string]any, len(details))
		for k, v := range details {
			if k == dx.DetailsSource || k == dx.DetailsChecksum || k == dx.DetailsVersion {
				continue
			}
			cleaned[k] = v
		}
		stripped["details"] = cleaned
		if len(cleaned) == 0 {
			delete(stripped, "details")
		}
	}
	if props, ok := stripped["properties"].(map[string]string); ok {
		cleaned := make(map[string]string, len(props))
		for k, v := range props {
			if k == dx.ChecksumProperty || k == dx.VersionProperty {
				continue
			}
			cleaned[k] = v
		}
		stripped["properties"] = cleaned
		if len(cleaned) == 0 {
			delete(stripped, "properties")
		}
	}

	canon, err := Canonicalize(stripped)
	if err != nil {
		return nil, "", err
	}
	sum := md5.Sum(canon)
	hexDigest := hex.EncodeToString(sum[:])

	out := make(map[string]any, len(req)+1)
	for k, v := range req {
		out[k] = v
	}
	details, _ := out["details"].(map[string]any)
	withDigest := make(map[string]any, len(details)+2)
	for k, v := range details {
		withDigest[k] = v
	}
	withDigest[dx.DetailsChecksum] = hexDigest
	withDigest[dx.DetailsVersion] = compilerVersion
	out["details"] = withDigest

	props, _ := out["properties"].(map[string]string)
	withProps := make(map[string]string, len(props)+2)
	for k, v := range props {
		withProps[k] = v
	}
	withProps[dx.ChecksumProperty] = hexDigest
	withProps[dx.VersionProperty] = compilerVersion
	out["properties"] = withProps

	return out, hexDigest, nil
}
