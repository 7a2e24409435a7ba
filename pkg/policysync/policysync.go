// Package policysync makes the policies of a policy service under a set
// of name prefixes equal to a desired list.
package policysync

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/logging"
	"github.com/agentstation/policytool/pkg/policy"
)

// Client is the part of the policy service the engine needs.
type Client interface {
	// FindPolicyByName returns the policy or an error matching
	// errors.IsNotFound when it does not exist.
	FindPolicyByName(ctx context.Context, service, name string) (*policy.Policy, error)
	// FindPoliciesByNamePart returns the policies of service whose name
	// contains part.
	FindPoliciesByNamePart(ctx context.Context, service, part string) ([]policy.Policy, error)
	CreatePolicy(ctx context.Context, p policy.Policy) error
	UpdatePolicy(ctx context.Context, id int64, p policy.Policy) error
	DeletePolicyByName(ctx context.Context, service, name string) error
}

// Result lists the decisions of a sync. In dry-run mode nothing was
// applied.
type Result struct {
	DryRun  bool              `json:"dry_run" yaml:"dry_run"`
	Deleted []policy.Identity `json:"deleted" yaml:"deleted"`
	Updated []policy.Identity `json:"updated" yaml:"updated"`
	Created []policy.Identity `json:"created" yaml:"created"`
}

// Syncer applies desired policies.
type Syncer struct {
	client Client
	dryRun bool
	logger *zerolog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithDryRun reports the decisions without changing the service.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) {
		s.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// New creates a Syncer.
func New(client Client, opts ...Option) *Syncer {
	s := &Syncer{client: client, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync deletes the existing policies under prefixes that are not
// desired, then creates or updates every desired policy.
func (s *Syncer) Sync(ctx context.Context, prefixes []string, desired []policy.Policy) (*Result, error) {
	if err := checkCollisions(desired); err != nil {
		return nil, err
	}

	result := &Result{DryRun: s.dryRun}
	wanted := make(map[policy.Identity]struct{}, len(desired))
	for _, p := range desired {
		wanted[p.Identity()] = struct{}{}
	}

	existing, err := s.existing(ctx, services(desired), prefixes)
	if err != nil {
		return result, err
	}

	for _, id := range existing {
		if _, ok := wanted[id]; ok {
			continue
		}
		s.logger.Info().Str("service", id.Service).Str("policy", id.Name).Bool("dry_run", s.dryRun).Msg("Delete policy")
		if !s.dryRun {
			if err := s.client.DeletePolicyByName(ctx, id.Service, id.Name); err != nil {
				return result, err
			}
		}
		result.Deleted = append(result.Deleted, id)
	}

	for _, p := range desired {
		if err := s.upsert(ctx, p, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Syncer) upsert(ctx context.Context, p policy.Policy, result *Result) error {
	id := p.Identity()
	current, err := s.client.FindPolicyByName(ctx, p.Service, p.Name)
	switch {
	case err == nil:
		merged, err := policy.Merge(*current, p)
		if err != nil {
			return err
		}
		s.logger.Info().Str("service", id.Service).Str("policy", id.Name).Bool("dry_run", s.dryRun).Msg("Update policy")
		if !s.dryRun {
			if err := s.client.UpdatePolicy(ctx, current.ID, merged); err != nil {
				return err
			}
		}
		result.Updated = append(result.Updated, id)
	case errors.IsNotFound(err):
		s.logger.Info().Str("service", id.Service).Str("policy", id.Name).Bool("dry_run", s.dryRun).Msg("Create policy")
		if !s.dryRun {
			if err := s.client.CreatePolicy(ctx, p); err != nil {
				return err
			}
		}
		result.Created = append(result.Created, id)
	default:
		return err
	}
	return nil
}

// existing returns the union of policies matching any prefix on any
// service, in first-seen order.
func (s *Syncer) existing(ctx context.Context, services, prefixes []string) ([]policy.Identity, error) {
	seen := make(map[policy.Identity]struct{})
	var out []policy.Identity
	for _, prefix := range prefixes {
		for _, service := range services {
			policies, err := s.client.FindPoliciesByNamePart(ctx, service, prefix)
			if err != nil {
				return nil, err
			}
			for _, p := range policies {
				id := policy.Identity{Service: service, Name: p.Name}
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	s.logger.Debug().Int("existing", len(out)).Strs("services", services).Strs("prefixes", prefixes).Msg("Fetched existing policies")
	return out, nil
}

func services(desired []policy.Policy) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range desired {
		if _, ok := seen[p.Service]; ok {
			continue
		}
		seen[p.Service] = struct{}{}
		out = append(out, p.Service)
	}
	return out
}

// checkCollisions rejects a desired list naming the same policy twice.
func checkCollisions(desired []policy.Policy) error {
	seen := make(map[policy.Identity]struct{}, len(desired))
	var dups []string
	for _, p := range desired {
		id := p.Identity()
		if _, ok := seen[id]; ok {
			dups = append(dups, id.String())
			continue
		}
		seen[id] = struct{}{}
	}
	if len(dups) > 0 {
		return errors.NewValidationError("policies", dups,
			fmt.Sprintf("policies defined more than once: %s", strings.Join(dups, ", ")))
	}
	return nil
}
