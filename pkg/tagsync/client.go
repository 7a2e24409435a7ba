package tagsync

import (
	"context"
)

// Entity is a catalog entity as seen by the engine.
type Entity struct {
	GUID          string
	QualifiedName string
	Tags          []string
}

// CatalogClient is the part of the metadata catalog the engine needs.
type CatalogClient interface {
	// KnownTags lists the tag definitions of the catalog.
	KnownTags(ctx context.Context) ([]string, error)
	// CreateTags registers tag definitions in one batch.
	CreateTags(ctx context.Context, names []string) error
	// SearchEntities returns entities of typeName whose qualified name
	// starts with parts joined by dots.
	SearchEntities(ctx context.Context, typeName string, parts ...string) ([]Entity, error)
	// AddTags attaches tags to an entity in one call.
	AddTags(ctx context.Context, guid string, names []string) error
	// RemoveTag detaches one tag from an entity.
	RemoveTag(ctx context.Context, guid, name string) error
	// RegisterPathEntity returns the guid of the storage path entity,
	// creating it when needed.
	RegisterPathEntity(ctx context.Context, path string) (string, error)
	// EntityTags lists the tags attached to an entity.
	EntityTags(ctx context.Context, guid string) ([]string, error)
}
