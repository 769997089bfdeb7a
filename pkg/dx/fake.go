package dx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory API for tests. It records every mutating call and
// serves finds from its object table.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	objects map[string]ObjectDesc
	closed  map[string]bool

	// Calls lists mutating operations in order: "applet-new:<name>",
	// "workflow-new:<name>", "close:<id>", "archive:<id>", "remove:<id>".
	Calls []string
	// Requests keeps the raw build request per created object id.
	Requests map[string]map[string]any
	// FailOn makes the named route return an error, for failure-path tests.
	FailOn map[string]error
}

var _ API = (*Fake)(nil)

// NewFake creates an empty fake platform.
func NewFake() *Fake {
	return &Fake{
		objects:  make(map[string]ObjectDesc),
		closed:   make(map[string]bool),
		Requests: make(map[string]map[string]any),
		FailOn:   make(map[string]error),
	}
}

// Seed installs an existing object, as if a previous compile had built it.
func (f *Fake) Seed(desc ObjectDesc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[desc.ID] = desc
}

// Objects returns a snapshot of the current object table.
func (f *Fake) Objects() []ObjectDesc {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ObjectDesc, 0, len(f.objects))
	for _, o := range f.objects {
		out = append(out, o)
	}
	return out
}

func (f *Fake) create(class, project string, req map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn[class+"-new"]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("%s-%06d", class, f.nextID)
	name, _ := req["name"].(string)
	folder, _ := req["folder"].(string)
	props := map[string]string{}
	if p, ok := req["properties"].(map[string]string); ok {
		for k, v := range p {
			props[k] = v
		}
	} else if p, ok := req["properties"].(map[string]any); ok {
		for k, v := range p {
			props[k], _ = v.(string)
		}
	}
	f.objects[id] = ObjectDesc{
		ID:         id,
		Name:       name,
		Class:      class,
		Project:    project,
		Folder:     folder,
		Created:    time.Now(),
		Properties: props,
	}
	f.Requests[id] = req
	f.Calls = append(f.Calls, class+"-new:"+name)
	return id, nil
}

func (f *Fake) AppletNew(_ context.Context, project string, req map[string]any) (string, error) {
	return f.create("applet", project, req)
}

func (f *Fake) WorkflowNew(_ context.Context, project string, req map[string]any) (string, error) {
	return f.create("workflow", project, req)
}

func (f *Fake) WorkflowClose(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["close"]; err != nil {
		return err
	}
	f.closed[id] = true
	f.Calls = append(f.Calls, "close:"+id)
	return nil
}

// Closed reports whether a workflow was closed.
func (f *Fake) Closed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[id]
}

func (f *Fake) Describe(_ context.Context, id string, _ []string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("describe %s: not found", id)
	}
	return map[string]any{
		"id":     o.ID,
		"name":   o.Name,
		"class":  o.Class,
		"folder": o.Folder,
	}, nil
}

func (f *Fake) FindDataObjects(_ context.Context, q FindQuery) ([]ObjectDesc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailOn["find"]; err != nil {
		return nil, err
	}
	var out []ObjectDesc
	for _, o := range f.objects {
		if q.Project != "" && o.Project != q.Project {
			continue
		}
		if q.Folder != "" && !folderMatch(o.Folder, q.Folder, q.Recurse) {
			continue
		}
		if q.Property != "" {
			if _, ok := o.Properties[q.Property]; !ok {
				continue
			}
		}
		if len(q.Classes) > 0 && !contains(q.Classes, o.Class) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) ResolvePath(_ context.Context, project, path string) ([]ObjectDesc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, name := splitPath(path)
	var out []ObjectDesc
	for _, o := range f.objects {
		if o.Project == project && o.Folder == folder && o.Name == name {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *Fake) ArchiveObjects(_ context.Context, _ string, folder string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		o, ok := f.objects[id]
		if !ok {
			return fmt.Errorf("archive %s: not found", id)
		}
		o.Folder = strings.TrimSuffix(folder, "/") + "/.archive"
		f.objects[id] = o
		f.Calls = append(f.Calls, "archive:"+id)
	}
	return nil
}

func (f *Fake) RemoveObjects(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.objects, id)
		f.Calls = append(f.Calls, "remove:"+id)
	}
	return nil
}

func folderMatch(objFolder, queryFolder string, recurse bool) bool {
	if objFolder == queryFolder {
		return true
	}
	return recurse && strings.HasPrefix(objFolder, strings.TrimSuffix(queryFolder, "/")+"/")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
