// Package atlas is the metadata catalog client: classification
// definitions, entity search and classification assignment over the
// catalog's v2 REST API.
package atlas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/internal/transport"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/tagsync"
)

// SearchLimit is the page size of basic searches. Results are not paged.
const SearchLimit = 10000

// PathTypeName is the entity type of storage paths.
const PathTypeName = "hdfs_path"

// SearchMode selects how a qualified name prefix is expressed to the
// basic search endpoint.
type SearchMode string

const (
	// SearchModeContains sends STARTSWITH on the first part and CONTAINS
	// on the others, which some catalog versions need to match dotted
	// names at all.
	SearchModeContains SearchMode = "contains"
	// SearchModeStartsWith sends one STARTSWITH on the whole prefix.
	SearchModeStartsWith SearchMode = "startswith"
)

// ParseSearchMode validates a configured search mode. Empty selects
// SearchModeContains.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(s)) {
	case "", SearchModeContains:
		return SearchModeContains, nil
	case SearchModeStartsWith:
		return SearchModeStartsWith, nil
	default:
		return "", errors.NewConfigError("atlas", fmt.Sprintf("unknown search mode %q", s), nil)
	}
}

// Client talks to the catalog.
type Client struct {
	baseURL string
	http    *transport.Client
	mode    SearchMode
	logger  *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSearchMode sets the prefix search mode.
func WithSearchMode(mode SearchMode) Option {
	return func(c *Client) {
		c.mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a catalog client. baseURL is the API root, for example
// http://atlas:21000/api/atlas.
func New(baseURL string, httpClient *transport.Client, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		mode:    SearchModeContains,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ tagsync.CatalogClient = (*Client)(nil)

type typeHeader struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// KnownTags lists the names of the classification definitions.
func (c *Client) KnownTags(ctx context.Context) ([]string, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/v2/types/typedefs/headers")
	if err != nil {
		return nil, err
	}
	var headers []typeHeader
	if err := transport.DecodeResponse(resp, &headers); err != nil {
		return nil, err
	}
	var names []string
	for _, h := range headers {
		if h.Category == "CLASSIFICATION" {
			names = append(names, h.Name)
		}
	}
	return names, nil
}

type classificationDef struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SuperTypes    []string `json:"superTypes"`
	AttributeDefs []any    `json:"attributeDefs"`
}

// CreateTags registers classification definitions in one call.
func (c *Client) CreateTags(ctx context.Context, names []string) error {
	defs := make([]classificationDef, len(names))
	for i, name := range names {
		defs[i] = classificationDef{Name: name, SuperTypes: []string{}, AttributeDefs: []any{}}
	}
	body := map[string]any{"classificationDefs": defs}
	resp, err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/v2/types/typedefs?type=classification", body)
	if err != nil {
		return err
	}
	return resp.Expect(http.StatusOK)
}

type criterion struct {
	AttributeName  string `json:"attributeName"`
	Operator       string `json:"operator"`
	AttributeValue string `json:"attributeValue"`
}

type entityFilters struct {
	Condition string      `json:"condition"`
	Criterion []criterion `json:"criterion"`
}

type searchRequest struct {
	TypeName               string        `json:"typeName"`
	ExcludeDeletedEntities bool          `json:"excludeDeletedEntities"`
	Limit                  int           `json:"limit"`
	EntityFilters          entityFilters `json:"entityFilters"`
}

type entityHeader struct {
	GUID                string         `json:"guid"`
	Attributes          map[string]any `json:"attributes"`
	ClassificationNames []string       `json:"classificationNames"`
}

type searchResponse struct {
	Entities []entityHeader `json:"entities"`
}

// SearchEntities returns the live entities of typeName whose qualified
// name starts with parts joined by dots followed by a dot.
func (c *Client) SearchEntities(ctx context.Context, typeName string, parts ...string) ([]tagsync.Entity, error) {
	if len(parts) == 0 {
		return nil, errors.NewValidationError("parts", parts, "search needs at least one qualified name part")
	}
	req := searchRequest{
		TypeName:               typeName,
		ExcludeDeletedEntities: true,
		Limit:                  SearchLimit,
		EntityFilters:          entityFilters{Condition: "AND", Criterion: c.criteria(parts)},
	}
	resp, err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/v2/search/basic", req)
	if err != nil {
		return nil, err
	}
	var result searchResponse
	if err := transport.DecodeResponse(resp, &result); err != nil {
		return nil, err
	}

	prefix := strings.Join(parts, ".") + "."
	var entities []tagsync.Entity
	for _, e := range result.Entities {
		qn, _ := e.Attributes["qualifiedName"].(string)
		// the server side filter is looser than a prefix match
		if !strings.HasPrefix(qn, prefix) {
			continue
		}
		entities = append(entities, tagsync.Entity{
			GUID:          e.GUID,
			QualifiedName: qn,
			Tags:          e.ClassificationNames,
		})
	}
	c.logger.Debug().
		Str("type", typeName).
		Str("prefix", prefix).
		Int("returned", len(result.Entities)).
		Int("matched", len(entities)).
		Msg("Searched catalog")
	return entities, nil
}

func (c *Client) criteria(parts []string) []criterion {
	if c.mode == SearchModeStartsWith {
		return []criterion{{
			AttributeName:  "qualifiedName",
			Operator:       "STARTSWITH",
			AttributeValue: strings.Join(parts, ".") + ".",
		}}
	}
	out := []criterion{{AttributeName: "qualifiedName", Operator: "STARTSWITH", AttributeValue: parts[0] + "."}}
	for _, part := range parts[1:] {
		out = append(out, criterion{AttributeName: "qualifiedName", Operator: "CONTAINS", AttributeValue: "." + part + "."})
	}
	return out
}

type classification struct {
	TypeName string `json:"typeName"`
}

// AddTags attaches classifications to an entity in one call.
func (c *Client) AddTags(ctx context.Context, guid string, names []string) error {
	body := make([]classification, len(names))
	for i, name := range names {
		body[i] = classification{TypeName: name}
	}
	endpoint := fmt.Sprintf("%s/v2/entity/guid/%s/classifications", c.baseURL, url.PathEscape(guid))
	resp, err := c.http.Do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	return resp.Expect(http.StatusNoContent)
}

// RemoveTag detaches one classification from an entity.
func (c *Client) RemoveTag(ctx context.Context, guid, name string) error {
	endpoint := fmt.Sprintf("%s/v2/entity/guid/%s/classification/%s", c.baseURL, url.PathEscape(guid), url.PathEscape(name))
	resp, err := c.http.Do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return resp.Expect(http.StatusNoContent)
}

// EntityTags lists the classifications attached to an entity.
func (c *Client) EntityTags(ctx context.Context, guid string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v2/entity/guid/%s/classifications", c.baseURL, url.PathEscape(guid))
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []classification `json:"list"`
	}
	if err := transport.DecodeResponse(resp, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.List))
	for _, cl := range result.List {
		names = append(names, cl.TypeName)
	}
	return names, nil
}

type entityWithExtInfo struct {
	Entity struct {
		GUID string `json:"guid"`
	} `json:"entity"`
}

type mutationResponse struct {
	GUIDAssignments map[string]string         `json:"guidAssignments"`
	MutatedEntities map[string][]entityHeader `json:"mutatedEntities"`
}

// RegisterPathEntity returns the guid of the path entity, creating it
// when the catalog does not know the path yet.
func (c *Client) RegisterPathEntity(ctx context.Context, path string) (string, error) {
	query := url.Values{"attr:qualifiedName": {path}}
	endpoint := fmt.Sprintf("%s/v2/entity/uniqueAttribute/type/%s?%s", c.baseURL, PathTypeName, query.Encode())
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusOK {
		var existing entityWithExtInfo
		if err := resp.Decode(&existing); err != nil {
			return "", err
		}
		return existing.Entity.GUID, nil
	}
	if err := resp.Expect(http.StatusNotFound); err != nil {
		return "", err
	}

	body := map[string]any{
		"entity": map[string]any{
			"typeName": PathTypeName,
			"attributes": map[string]any{
				"qualifiedName": path,
				"name":          path,
				"path":          path,
			},
		},
	}
	resp, err = c.http.Do(ctx, http.MethodPost, c.baseURL+"/v2/entity", body)
	if err != nil {
		return "", err
	}
	var created mutationResponse
	if err := transport.DecodeResponse(resp, &created); err != nil {
		return "", err
	}
	for _, guid := range created.GUIDAssignments {
		return guid, nil
	}
	for _, entities := range created.MutatedEntities {
		for _, e := range entities {
			if e.GUID != "" {
				return e.GUID, nil
			}
		}
	}
	return "", errors.NewAPIError(c.http.Service(), resp.StatusCode, "no guid assigned to path entity "+path)
}
