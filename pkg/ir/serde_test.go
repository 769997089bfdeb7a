package ir

import (
	"reflect"
	"testing"
)

func TestValueToPlatform_FileLinks(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want any
	}{
		{"bare id", "file-0001", map[string]any{LinkKey: "file-0001"}},
		{"dx uri", "dx://project-1:file-0002", map[string]any{LinkKey: "file-0002"}},
		{"http stays string", "https://example.com/ref.fa", "https://example.com/ref.fa"},
		{"local path stays string", "inputs/ref.fa", "inputs/ref.fa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueToPlatform(VFile{URI: tt.uri})
			if err != nil {
				t.Fatalf("ValueToPlatform: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeParameterValue_Native(t *testing.T) {
	fields, err := EncodeParameterValue("count", TInt{}, VInt{Value: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("native encoding should be one field, got %d", len(fields))
	}
	if fields["count"] != int64(3) {
		t.Errorf("count = %v", fields["count"])
	}
}

func TestEncodeParameterValue_Composite(t *testing.T) {
	pair := TSchema{Name: "Pair", Fields: []SchemaField{
		{Name: "left", Type: TFile{}},
		{Name: "right", Type: TInt{}},
	}}
	v := VHash{Fields: []HashField{
		{Name: "left", Value: VFile{URI: "file-0009"}},
		{Name: "right", Value: VInt{Value: 2}},
	}}
	fields, err := EncodeParameterValue("p", pair, v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	wrapper, ok := fields["p"].(map[string]any)
	if !ok {
		t.Fatalf("composite value not a hash: %T", fields["p"])
	}
	if _, ok := wrapper[ComplexKey]; !ok {
		t.Errorf("composite value missing %q wrapper", ComplexKey)
	}
	links, ok := fields["p"+FlatFilesSuffix].([]any)
	if !ok {
		t.Fatalf("missing flat files companion")
	}
	if len(links) != 1 {
		t.Errorf("expected 1 file link, got %d", len(links))
	}

	// Round trip.
	decoded, err := DecodeParameterValue(fields, "p", pair)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hash, ok := decoded.(VHash)
	if !ok {
		t.Fatalf("decoded %T", decoded)
	}
	if left, _ := hash.Get("left"); FormatValue(left) != "file-0009" {
		t.Errorf("left = %s", FormatValue(left))
	}
}

func TestCollectFileLinks(t *testing.T) {
	j := map[string]any{
		"a": map[string]any{LinkKey: "file-1"},
		"b": []any{
			map[string]any{LinkKey: "file-2"},
			"not a link",
		},
		"c": 7,
	}
	links := CollectFileLinks(j)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
}

func TestPairAndMapSchemas(t *testing.T) {
	p := PairSchema(TInt{}, TFile{})
	if p.Name != "Pair___(Int,File)" {
		t.Errorf("pair schema name = %q", p.Name)
	}
	if len(p.Fields) != 2 || p.Fields[0].Name != "left" || p.Fields[1].Name != "right" {
		t.Errorf("pair schema fields = %v", p.Fields)
	}

	m := MapSchema(TString{}, TInt{})
	if m.Name != "Map___[String,Int]" {
		t.Errorf("map schema name = %q", m.Name)
	}
	keys := m.Fields[0]
	if keys.Name != "keys" || keys.Type.String() != "Array[String]" {
		t.Errorf("map keys field = %v", keys)
	}
}
