package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission"
	permissiondomain "orgscope/internal/permission/domain"
)

const policyPackage = "data.orgscope.capabilities"

const denyQuery = policyPackage + ".deny"

// samplePolicy is compiled by HealthCheck. It also documents the policy shape.
const samplePolicy = `package orgscope.capabilities

deny contains "canDeleteOrders" if {
	not "accounting" in input.roles
	input.capabilities.canDeleteOrders
}
`

// OPARestrictor clears capability flags named in the deny set of the org's Rego policies.
// Policies come from the organization's capability_policy setting and, when a
// PolicySource is set, from its enabled policy rows. Admin role sets are never restricted.
type OPARestrictor struct {
	source PolicySource
	log    *zap.Logger
	cache  *lru.LRU[string, rego.PreparedEvalQuery]
}

// DefaultCacheSize is the number of compiled policy sets kept by default.
const DefaultCacheSize = 256

// Option configures an OPARestrictor.
type Option func(*restrictorOptions)

type restrictorOptions struct {
	cacheSize int
}

// WithCacheSize bounds the compiled policy cache. Non-positive sizes keep the default.
func WithCacheSize(n int) Option {
	return func(o *restrictorOptions) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// NewOPARestrictor returns a restrictor. source and log may be nil.
func NewOPARestrictor(source PolicySource, log *zap.Logger, opts ...Option) *OPARestrictor {
	if log == nil {
		log = zap.NewNop()
	}
	o := restrictorOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &OPARestrictor{
		source: source,
		log:    log,
		cache:  lru.NewLRU[string, rego.PreparedEvalQuery](o.cacheSize, nil, 0),
	}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the sample policy.
// Does not call the policy source or database. Returns nil on success.
func (e *OPARestrictor) HealthCheck(ctx context.Context) error {
	pq, err := e.prepare(ctx, []string{samplePolicy})
	if err != nil {
		return fmt.Errorf("compile sample policy: %w", err)
	}
	denied, err := e.deny(ctx, pq, buildInput("", "", permissiondomain.NewRoleSet(permissiondomain.RoleSales),
		permissiondomain.CapabilitySet{}.With(permissiondomain.CanDeleteOrders)))
	if err != nil {
		return fmt.Errorf("eval sample policy: %w", err)
	}
	if len(denied) != 1 || denied[0] != permissiondomain.CanDeleteOrders.String() {
		return fmt.Errorf("sample policy returned %v", denied)
	}
	return nil
}

// Restrict implements permission.Restrictor. On any failure it returns the empty set.
func (e *OPARestrictor) Restrict(ctx context.Context, org *orgdomain.Org, userID string, roles permissiondomain.RoleSet, caps permissiondomain.CapabilitySet) (permissiondomain.CapabilitySet, error) {
	out, _, err := e.Evaluate(ctx, org, userID, roles, caps)
	return out, err
}

// Evaluate applies the org's policies to caps and reports what was removed.
func (e *OPARestrictor) Evaluate(ctx context.Context, org *orgdomain.Org, userID string, roles permissiondomain.RoleSet, caps permissiondomain.CapabilitySet) (permissiondomain.CapabilitySet, Decision, error) {
	if org == nil || roles.Has(permissiondomain.RoleAdmin) {
		return caps, Decision{}, nil
	}
	policies, err := e.policies(ctx, org)
	if err != nil {
		return permissiondomain.CapabilitySet{}, Decision{}, err
	}
	if len(policies) == 0 {
		return caps, Decision{}, nil
	}
	pq, err := e.prepare(ctx, policies)
	if err != nil {
		return permissiondomain.CapabilitySet{}, Decision{}, fmt.Errorf("org %s: %w", org.ID, err)
	}
	denied, err := e.deny(ctx, pq, buildInput(userID, org.ID, roles, caps))
	if err != nil {
		return permissiondomain.CapabilitySet{}, Decision{}, fmt.Errorf("org %s: %w", org.ID, err)
	}
	out := caps
	for _, name := range denied {
		c, ok := permissiondomain.ParseCapability(name)
		if !ok {
			return permissiondomain.CapabilitySet{}, Decision{}, fmt.Errorf("org %s: policy denies unknown capability %q", org.ID, name)
		}
		out = out.Without(c)
	}
	return out, Decision{Denied: denied, Evaluated: true}, nil
}

func (e *OPARestrictor) policies(ctx context.Context, org *orgdomain.Org) ([]string, error) {
	var out []string
	if p := org.CapabilityPolicy(); p != "" {
		out = append(out, p)
	}
	if e.source == nil {
		return out, nil
	}
	rows, err := e.source.GetEnabledPoliciesByOrg(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load policies for org %s: %w", permission.ErrFetchFailure, org.ID, err)
	}
	for _, p := range rows {
		if p.Enabled && p.Rules != "" {
			out = append(out, p.Rules)
		}
	}
	return out, nil
}

func (e *OPARestrictor) prepare(ctx context.Context, policies []string) (rego.PreparedEvalQuery, error) {
	h := sha256.New()
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		h.Write([]byte(p))
		h.Write([]byte{0})
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	key := hex.EncodeToString(h.Sum(nil))
	if pq, ok := e.cache.Get(key); ok {
		return pq, nil
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policies: %w", err)
	}
	for name, m := range compiler.Modules {
		if got := m.Package.Path.String(); got != policyPackage {
			return rego.PreparedEvalQuery{}, fmt.Errorf("%s: package %s, want %s", name, got, policyPackage)
		}
	}
	pq, err := rego.New(
		rego.Query(denyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("prepare policies: %w", err)
	}
	e.cache.Add(key, pq)
	e.log.Debug("policy: compiled capability policies", zap.Int("modules", len(modules)))
	return pq, nil
}

func (e *OPARestrictor) deny(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]interface{}) ([]string, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}
	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("deny is %T, want a set of strings", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("deny contains %T, want string", v)
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func buildInput(userID, orgID string, roles permissiondomain.RoleSet, caps permissiondomain.CapabilitySet) map[string]interface{} {
	names := make([]interface{}, 0, len(roles.Roles()))
	for _, r := range roles.Roles() {
		names = append(names, r.String())
	}
	flags := make(map[string]interface{}, permissiondomain.CapabilityCount)
	for name, v := range caps.Map() {
		flags[name] = v
	}
	return map[string]interface{}{
		"user_id":      userID,
		"org_id":       orgID,
		"roles":        names,
		"capabilities": flags,
	}
}
