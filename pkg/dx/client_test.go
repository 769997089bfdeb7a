package dx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:    url,
		Token:      "secret",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestAppletNew(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"id": "applet-000123"})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).AppletNew(context.Background(), "project-1", map[string]any{"name": "align"})
	if err != nil {
		t.Fatalf("AppletNew: %v", err)
	}
	if id != "applet-000123" {
		t.Errorf("id = %q", id)
	}
	if gotPath != "/applet/new" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["project"] != "project-1" || gotBody["name"] != "align" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestCall_RetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "workflow-000007"})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).WorkflowNew(context.Background(), "project-1", map[string]any{"name": "wf"})
	if err != nil {
		t.Fatalf("WorkflowNew after retries: %v", err)
	}
	if id != "workflow-000007" {
		t.Errorf("id = %q", id)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestCall_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "InvalidInput", "message": "bad request"},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).AppletNew(context.Background(), "project-1", map[string]any{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts.Load() != 1 {
		t.Errorf("client errors must not retry, attempts = %d", attempts.Load())
	}
}

func TestFindDataObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system/findDataObjects" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{
					"id":      "applet-000042",
					"project": "project-1",
					"describe": map[string]any{
						"name":       "align",
						"folder":     "/pipe",
						"created":    1700000000000,
						"properties": map[string]any{ChecksumProperty: "abc"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	objs, err := testClient(srv.URL).FindDataObjects(context.Background(), FindQuery{
		Project:  "project-1",
		Folder:   "/pipe",
		Property: ChecksumProperty,
	})
	if err != nil {
		t.Fatalf("FindDataObjects: %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("objs = %+v", objs)
	}
	o := objs[0]
	if o.ID != "applet-000042" || o.Class != "applet" || o.Properties[ChecksumProperty] != "abc" {
		t.Errorf("obj = %+v", o)
	}
	if o.Created.UnixMilli() != 1700000000000 {
		t.Errorf("created = %v", o.Created)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		wantFolder string
		wantName   string
	}{
		{"align", "/", "align"},
		{"/align", "/", "align"},
		{"/pipe/align", "/pipe", "align"},
		{"/pipe/sub/align/", "/pipe/sub", "align"},
	}
	for _, tt := range tests {
		folder, name := splitPath(tt.path)
		if folder != tt.wantFolder || name != tt.wantName {
			t.Errorf("splitPath(%q) = (%q, %q), want (%q, %q)", tt.path, folder, name, tt.wantFolder, tt.wantName)
		}
	}
}
