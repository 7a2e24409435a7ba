// Package ranger is the policy service client.
package ranger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/policytool/internal/transport"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/policy"
	"github.com/agentstation/policytool/pkg/policysync"
)

// DefaultPageSize is the page size of policy searches.
const DefaultPageSize = 50

// Client talks to the policy service.
type Client struct {
	baseURL  string
	http     *transport.Client
	pageSize int
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the page size of policy searches.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a policy service client. baseURL is the service root, for
// example http://ranger:6080.
func New(baseURL string, httpClient *transport.Client, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ policysync.Client = (*Client)(nil)

// FindPolicyByName fetches one policy. A missing policy is reported as a
// not found error.
func (c *Client) FindPolicyByName(ctx context.Context, service, name string) (*policy.Policy, error) {
	endpoint := fmt.Sprintf("%s/service/public/v2/api/service/%s/policy/%s",
		c.baseURL, url.PathEscape(service), url.PathEscape(name))
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		nf := errors.NewNotFoundError("policy", service+"/"+name)
		nf.Service = c.http.Service()
		return nil, nf
	}
	var p policy.Policy
	if err := transport.DecodeResponse(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPoliciesByNamePart lists the policies of service whose name
// contains part, following pages until a short page.
func (c *Client) FindPoliciesByNamePart(ctx context.Context, service, part string) ([]policy.Policy, error) {
	var all []policy.Policy
	for start := 0; ; start += c.pageSize {
		query := url.Values{
			"serviceName":       {service},
			"policyNamePartial": {part},
			"pageSize":          {strconv.Itoa(c.pageSize)},
			"startIndex":        {strconv.Itoa(start)},
		}
		resp, err := c.http.Get(ctx, c.baseURL+"/service/public/v2/api/policy?"+query.Encode())
		if err != nil {
			return nil, err
		}
		var page []policy.Policy
		if err := transport.DecodeResponse(resp, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
	}
}

// CreatePolicy creates a policy through the plugin API, which keeps the
// policy type of row filter policies.
func (c *Client) CreatePolicy(ctx context.Context, p policy.Policy) error {
	resp, err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/service/plugins/policies", p)
	if err != nil {
		return err
	}
	return c.expect(resp, "create", p.Identity(), http.StatusOK)
}

// UpdatePolicy replaces the policy with the given id.
func (c *Client) UpdatePolicy(ctx context.Context, id int64, p policy.Policy) error {
	endpoint := fmt.Sprintf("%s/service/plugins/policies/%d", c.baseURL, id)
	resp, err := c.http.Do(ctx, http.MethodPut, endpoint, p)
	if err != nil {
		return err
	}
	return c.expect(resp, "update", p.Identity(), http.StatusOK)
}

// DeletePolicyByName deletes a policy by service and name.
func (c *Client) DeletePolicyByName(ctx context.Context, service, name string) error {
	query := url.Values{"servicename": {service}, "policyname": {name}}
	resp, err := c.http.Do(ctx, http.MethodDelete, c.baseURL+"/service/public/v2/api/policy?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	return c.expect(resp, "delete", policy.Identity{Service: service, Name: name}, http.StatusNoContent)
}

func (c *Client) expect(resp *transport.Response, action string, id policy.Identity, code int) error {
	if err := resp.Expect(code); err != nil {
		return fmt.Errorf("couldn't %s policy %s: %w", action, id, err)
	}
	return nil
}
