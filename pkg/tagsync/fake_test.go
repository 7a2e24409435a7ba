package tagsync_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/agentstation/policytool/pkg/tagsync"
)

// fakeCatalog is an in-memory catalog. Entities are keyed by guid.
type fakeCatalog struct {
	mu       sync.Mutex
	known    []string
	entities map[string]*tagsync.Entity
	paths    map[string]string

	// failAdd makes the next n AddTags calls fail.
	failAdd int
	// failRemove makes RemoveTag fail for these tag names.
	failRemove map[string]bool

	addCalls    int
	removeCalls int
	createCalls [][]string
}

func newFakeCatalog(known ...string) *fakeCatalog {
	return &fakeCatalog{
		known:      known,
		entities:   make(map[string]*tagsync.Entity),
		paths:      make(map[string]string),
		failRemove: make(map[string]bool),
	}
}

func (f *fakeCatalog) addEntity(guid, typeName, qualifiedName string, tagNames ...string) {
	f.entities[guid] = &tagsync.Entity{
		GUID:          guid,
		QualifiedName: typeName + ":" + qualifiedName,
		Tags:          tagNames,
	}
}

func (f *fakeCatalog) tagsOf(guid string) []string {
	out := slices.Clone(f.entities[guid].Tags)
	slices.Sort(out)
	return out
}

func (f *fakeCatalog) KnownTags(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.known), nil
}

func (f *fakeCatalog) CreateTags(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, names)
	f.known = append(f.known, names...)
	return nil
}

func (f *fakeCatalog) SearchEntities(_ context.Context, typeName string, parts ...string) ([]tagsync.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := typeName + ":" + strings.Join(parts, ".") + "."
	var out []tagsync.Entity
	for _, e := range f.entities {
		if strings.HasPrefix(e.QualifiedName, prefix) {
			out = append(out, tagsync.Entity{
				GUID:          e.GUID,
				QualifiedName: strings.TrimPrefix(e.QualifiedName, typeName+":"),
				Tags:          slices.Clone(e.Tags),
			})
		}
	}
	return out, nil
}

func (f *fakeCatalog) AddTags(_ context.Context, guid string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.failAdd > 0 {
		f.failAdd--
		return fmt.Errorf("status 500")
	}
	f.entities[guid].Tags = append(f.entities[guid].Tags, names...)
	return nil
}

func (f *fakeCatalog) RemoveTag(_ context.Context, guid, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.failRemove[name] {
		return fmt.Errorf("cannot remove %s", name)
	}
	e := f.entities[guid]
	e.Tags = slices.DeleteFunc(e.Tags, func(t string) bool { return t == name })
	return nil
}

func (f *fakeCatalog) RegisterPathEntity(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if guid, ok := f.paths[path]; ok {
		return guid, nil
	}
	guid := "path-" + path
	f.paths[path] = guid
	f.entities[guid] = &tagsync.Entity{GUID: guid, QualifiedName: "hdfs_path:" + path}
	return guid, nil
}

func (f *fakeCatalog) EntityTags(_ context.Context, guid string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entities[guid].Tags), nil
}

type fakeLocator map[string]string

func (f fakeLocator) Location(_ context.Context, database, table string) (string, error) {
	loc, ok := f[database+"."+table]
	if !ok {
		return "", fmt.Errorf("table %s.%s not found", database, table)
	}
	return loc, nil
}
