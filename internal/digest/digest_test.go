package digest

import (
	"testing"

	"github.com/me/dxcompiler/pkg/dx"
)

func baseRequest() map[string]any {
	return map[string]any{
		"name":   "align",
		"folder": "/pipelines",
		"inputSpec": []any{
			map[string]any{"name": "reads", "class": "file"},
		},
		"details": map[string]any{
			dx.DetailsSource: "H4sIAAAAA...",
			"custom":         "x",
		},
	}
}

func TestRequest_Stable(t *testing.T) {
	_, d1, err := Request(baseRequest(), "1.0")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	_, d2, err := Request(baseRequest(), "1.0")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digest unstable: %s vs %s", d1, d2)
	}
	if len(d1) != 32 {
		t.Errorf("digest %q is not a 128-bit hex string", d1)
	}
}

func TestRequest_ExcludesRelocationFields(t *testing.T) {
	_, d1, _ := Request(baseRequest(), "1.0")

	moved := baseRequest()
	moved["folder"] = "/elsewhere"
	moved["project"] = "project-0042"
	moved["parents"] = true
	_, d2, _ := Request(moved, "1.0")

	if d1 != d2 {
		t.Error("relocation fields must not change the digest")
	}
}

func TestRequest_ExcludesEmbeddedSource(t *testing.T) {
	_, d1, _ := Request(baseRequest(), "1.0")

	reencoded := baseRequest()
	reencoded["details"].(map[string]any)[dx.DetailsSource] = "H4sIDIFFERENT..."
	_, d2, _ := Request(reencoded, "1.0")

	if d1 != d2 {
		t.Error("re-encoded source must not change the digest")
	}

	semantic := baseRequest()
	semantic["details"].(map[string]any)["custom"] = "y"
	_, d3, _ := Request(semantic, "1.0")
	if d1 == d3 {
		t.Error("semantic detail changes must change the digest")
	}
}

func TestRequest_EmbedsDigest(t *testing.T) {
	out, d, err := Request(baseRequest(), "1.2.3")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	details := out["details"].(map[string]any)
	if details[dx.DetailsChecksum] != d {
		t.Errorf("details checksum = %v, want %s", details[dx.DetailsChecksum], d)
	}
	if details[dx.DetailsVersion] != "1.2.3" {
		t.Errorf("details version = %v", details[dx.DetailsVersion])
	}
	props := out["properties"].(map[string]string)
	if props[dx.ChecksumProperty] != d {
		t.Errorf("checksum property = %q", props[dx.ChecksumProperty])
	}
}

func TestCanonicalize_SortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": map[string]any{"z": 1, "y": 2}})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `{"a":{"y":2,"z":1},"b":1}`
	if string(a) != want {
		t.Errorf("canonical form = %s, want %s", a, want)
	}
}

// The embedded digest itself must not feed back into the digest, or a second
// compile of the same request would never match the first.
func TestRequest_Idempotent(t *testing.T) {
	out, d1, err := Request(baseRequest(), "1.0")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	// out carries checksum and version inside details and properties.
	_, d2, err := Request(out, "1.0")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digest changed after embedding: %s vs %s", d1, d2)
	}
}
