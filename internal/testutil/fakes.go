// Package testutil provides in-memory stand-ins for the remote services,
// for command tests.
package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/tagsync"
)

// Catalog is an in-memory metadata catalog.
type Catalog struct {
	mu       sync.Mutex
	Known    []string
	entities map[string]*tagsync.Entity
	typeOf   map[string]string
	paths    map[string]string
}

// NewCatalog creates a catalog knowing the given tag definitions.
func NewCatalog(known ...string) *Catalog {
	return &Catalog{
		Known:    known,
		entities: make(map[string]*tagsync.Entity),
		typeOf:   make(map[string]string),
		paths:    make(map[string]string),
	}
}

// AddEntity registers an entity. qualifiedName carries the cluster
// suffix, as in "s.t@cluster".
func (c *Catalog) AddEntity(guid, typeName, qualifiedName string, tagNames ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[guid] = &tagsync.Entity{GUID: guid, QualifiedName: qualifiedName, Tags: tagNames}
	c.typeOf[guid] = typeName
}

// Tags returns the sorted tags of an entity.
func (c *Catalog) Tags(guid string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return nil
	}
	out := slices.Clone(e.Tags)
	slices.Sort(out)
	return out
}

// PathGUID returns the guid of a registered path entity.
func (c *Catalog) PathGUID(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[path]
}

// KnownTags implements tagsync.CatalogClient.
func (c *Catalog) KnownTags(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Known), nil
}

// CreateTags implements tagsync.CatalogClient.
func (c *Catalog) CreateTags(_ context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Known = append(c.Known, names...)
	return nil
}

// SearchEntities implements tagsync.CatalogClient.
func (c *Catalog) SearchEntities(_ context.Context, typeName string, parts ...string) ([]tagsync.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.Join(parts, ".") + "."
	var out []tagsync.Entity
	for guid, e := range c.entities {
		if c.typeOf[guid] == typeName && strings.HasPrefix(e.QualifiedName, prefix) {
			cp := *e
			cp.Tags = slices.Clone(e.Tags)
			out = append(out, cp)
		}
	}
	return out, nil
}

// AddTags implements tagsync.CatalogClient.
func (c *Catalog) AddTags(_ context.Context, guid string, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return errors.NewNotFoundError("entity", guid)
	}
	e.Tags = append(e.Tags, names...)
	return nil
}

// RemoveTag implements tagsync.CatalogClient.
func (c *Catalog) RemoveTag(_ context.Context, guid, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return errors.NewNotFoundError("entity", guid)
	}
	e.Tags = slices.DeleteFunc(e.Tags, func(t string) bool { return t == name })
	return nil
}

// RegisterPathEntity implements tagsync.CatalogClient.
func (c *Catalog) RegisterPathEntity(_ context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if guid, ok := c.paths[path]; ok {
		return guid, nil
	}
	guid := "path:" + path
	c.paths[path] = guid
	c.entities[guid] = &tagsync.Entity{GUID: guid, QualifiedName: path}
	c.typeOf[guid] = "hdfs_path"
	return guid, nil
}

// EntityTags implements tagsync.CatalogClient.
func (c *Catalog) EntityTags(_ context.Context, guid string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[guid]
	if !ok {
		return nil, errors.NewNotFoundError("entity", guid)
	}
	return slices.Clone(e.Tags), nil
}

// PolicyService is an in-memory policy service.
type PolicyService struct {
	mu       sync.Mutex
	policies map[policy.Identity]policy.Policy
	nextID   int64
	// Mutations lists create, update and delete calls in order.
	Mutations []string
}

// NewPolicyService creates a policy service holding existing.
func NewPolicyService(existing ...policy.Policy) *PolicyService {
	s := &PolicyService{policies: make(map[policy.Identity]policy.Policy)}
	for _, p := range existing {
		s.nextID++
		p.ID = s.nextID
		s.policies[p.Identity()] = p
	}
	return s
}

// Policy returns a stored policy.
func (s *PolicyService) Policy(service, name string) (policy.Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[policy.Identity{Service: service, Name: name}]
	return p, ok
}

// FindPolicyByName implements policysync.Client.
func (s *PolicyService) FindPolicyByName(_ context.Context, service, name string) (*policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[policy.Identity{Service: service, Name: name}]
	if !ok {
		return nil, errors.NewNotFoundError("policy", service+"/"+name)
	}
	return &p, nil
}

// FindPoliciesByNamePart implements policysync.Client.
func (s *PolicyService) FindPoliciesByNamePart(_ context.Context, service, part string) ([]policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []policy.Policy
	for id, p := range s.policies {
		if id.Service == service && strings.Contains(id.Name, part) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreatePolicy implements policysync.Client.
func (s *PolicyService) CreatePolicy(_ context.Context, p policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.policies[p.Identity()] = p
	s.Mutations = append(s.Mutations, "create "+p.Identity().String())
	return nil
}

// UpdatePolicy implements policysync.Client.
func (s *PolicyService) UpdatePolicy(_ context.Context, id int64, p policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = id
	s.policies[p.Identity()] = p
	s.Mutations = append(s.Mutations, "update "+p.Identity().String())
	return nil
}

// DeletePolicyByName implements policysync.Client.
func (s *PolicyService) DeletePolicyByName(_ context.Context, service, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, policy.Identity{Service: service, Name: name})
	s.Mutations = append(s.Mutations, "delete "+service+"/"+name)
	return nil
}

// Locator resolves locations from a map keyed by database.table, or by
// database alone for database locations.
type Locator map[string]string

// Location implements location.Locator.
func (l Locator) Location(_ context.Context, database, table string) (string, error) {
	key := database + "." + table
	if table == "" || table == "*" {
		key = database
	}
	loc, ok := l[key]
	if !ok {
		return "", errors.NewNotFoundError("table", key)
	}
	return loc, nil
}
