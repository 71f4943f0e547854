package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"orgscope/internal/identity"
	membershipdomain "orgscope/internal/membership/domain"
	"orgscope/internal/orgcontext"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission"
	"orgscope/internal/permission/domain"
	"orgscope/internal/security"
)

type authStub identity.Snapshot

func (s authStub) Snapshot() identity.Snapshot { return identity.Snapshot(s) }

type tenantStub orgcontext.Snapshot

func (s tenantStub) Snapshot() orgcontext.Snapshot { return orgcontext.Snapshot(s) }

type permStub permission.Snapshot

func (s permStub) Snapshot() permission.Snapshot { return permission.Snapshot(s) }

var (
	authed   = authStub{State: identity.StateAuthenticated, Principal: security.Principal{UserID: "u1"}}
	anon     = authStub{State: identity.StateUnauthenticated}
	orgA     = &orgdomain.Org{ID: "A", Name: "A"}
	tenantOK = tenantStub{
		State:         orgcontext.StateReady,
		Organizations: []*membershipdomain.Membership{{OrgID: "A", Active: true, Organization: orgA}},
		Current:       orgA,
	}
	noTenant = tenantStub{State: orgcontext.StateReady, HasNoOrganizations: true}
)

func salesPerms() permStub {
	roles := domain.NewRoleSet(domain.RoleSales)
	return permStub{State: permission.StateReady, Roles: roles, Capabilities: permission.Resolve(roles)}
}

func TestAuthGuard(t *testing.T) {
	g := AuthGuard{Source: authStub{State: identity.StateLoading}}
	assert.Equal(t, OutcomeLoading, g.Evaluate(context.Background()).Outcome)

	g.Source = authed
	assert.True(t, g.Evaluate(context.Background()).Allowed())

	g.Source = anon
	d := g.Evaluate(context.Background())
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
	assert.Equal(t, DefaultLoginPath, d.Redirect)

	g.LoginPath = "/signin"
	assert.Equal(t, "/signin", g.Evaluate(context.Background()).Redirect)
}

func TestTenantGuard(t *testing.T) {
	fetchErr := errors.New("timeout")
	tests := []struct {
		name     string
		source   tenantStub
		outcome  Outcome
		reason   Reason
		redirect string
	}{
		{"uninitialized", tenantStub{State: orgcontext.StateUninitialized}, OutcomeLoading, ReasonNone, ""},
		{"loading", tenantStub{State: orgcontext.StateLoading}, OutcomeLoading, ReasonNone, ""},
		{"ready", tenantOK, OutcomeAllow, ReasonNone, ""},
		{"no organizations", noTenant, OutcomeDeny, ReasonNoOrganization, DefaultOrgCreatePath},
		{"selection pending", tenantStub{State: orgcontext.StateReady, Organizations: tenantOK.Organizations}, OutcomeLoading, ReasonNone, ""},
		{"fetch failure", tenantStub{State: orgcontext.StateFailed, Err: fetchErr}, OutcomeDeny, ReasonFetchFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := TenantGuard{Source: tt.source}.Evaluate(context.Background())
			assert.Equal(t, StageTenant, d.Stage)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.redirect, d.Redirect)
		})
	}

	d := TenantGuard{Source: tenantStub{State: orgcontext.StateFailed, Err: fetchErr}}.Evaluate(context.Background())
	assert.True(t, d.Retryable())
	assert.ErrorIs(t, d.Err, fetchErr)
}

func TestPermissionGuard(t *testing.T) {
	perms := salesPerms()

	d := PermissionGuard{Source: perms, Capability: domain.CanViewOrders}.Evaluate(context.Background())
	assert.True(t, d.Allowed())

	d = PermissionGuard{Source: perms, Capability: domain.CanCreateUsers}.Evaluate(context.Background())
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, ReasonPermissionDenied, d.Reason)
	assert.Equal(t, DefaultDeniedMessage, d.Message)
	assert.Empty(t, d.Redirect)

	d = PermissionGuard{Source: perms, Capability: domain.CanCreateUsers, Fallback: "ask an admin"}.Evaluate(context.Background())
	assert.Equal(t, "ask an admin", d.Message)

	d = PermissionGuard{Source: permStub{State: permission.StateLoading}, Capability: domain.CanViewOrders}.Evaluate(context.Background())
	assert.Equal(t, OutcomeLoading, d.Outcome)

	d = PermissionGuard{Source: permStub{State: permission.StateFailed, Err: errors.New("x")}, Capability: domain.CanViewOrders}.Evaluate(context.Background())
	assert.Equal(t, ReasonFetchFailure, d.Reason)
}

func TestChain_Ordering(t *testing.T) {
	tests := []struct {
		name   string
		auth   authStub
		tenant tenantStub
		perms  permStub
		stage  Stage
		reason Reason
	}{
		{"auth checked first", anon, noTenant, permStub{}, StageAuth, ReasonAuthRequired},
		{"tenant before permission", authed, noTenant, permStub{State: permission.StateFailed}, StageTenant, ReasonNoOrganization},
		{"tenant loading hides permission denial", authed, tenantStub{State: orgcontext.StateLoading}, salesPerms(), StageTenant, ReasonNone},
		{"permission last", authed, tenantOK, salesPerms(), StagePermission, ReasonPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Standard(
				AuthGuard{Source: tt.auth},
				TenantGuard{Source: tt.tenant},
				PermissionGuard{Source: tt.perms, Capability: domain.CanCreateUsers},
			)
			d := c.Evaluate(context.Background())
			assert.Equal(t, tt.stage, d.Stage)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestChain_NoMembershipsRedirectsRegardlessOfRoles(t *testing.T) {
	admin := domain.NewRoleSet(domain.RoleAdmin)
	for _, perms := range []permStub{
		{State: permission.StateReady, Roles: admin, Capabilities: permission.Resolve(admin)},
		{State: permission.StateReady},
		{State: permission.StateLoading},
		{State: permission.StateFailed},
	} {
		c := Standard(AuthGuard{Source: authed}, TenantGuard{Source: noTenant, CreatePath: "/new-org"},
			PermissionGuard{Source: perms, Capability: domain.CanViewOrders})
		d := c.Evaluate(context.Background())
		assert.Equal(t, ReasonNoOrganization, d.Reason)
		assert.Equal(t, "/new-org", d.Redirect)
	}
}

func TestChain_Do(t *testing.T) {
	ran := 0
	fn := func(context.Context) error { ran++; return nil }

	allowed := Standard(AuthGuard{Source: authed}, TenantGuard{Source: tenantOK},
		PermissionGuard{Source: salesPerms(), Capability: domain.CanViewOrders})
	d, err := allowed.Do(context.Background(), fn)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, 1, ran)

	denied := Standard(AuthGuard{Source: authed}, TenantGuard{Source: tenantOK},
		PermissionGuard{Source: salesPerms(), Capability: domain.CanCreateUsers})
	d, err = denied.Do(context.Background(), fn)
	require.NoError(t, err)
	assert.False(t, d.Allowed())
	assert.Equal(t, 1, ran)

	boom := errors.New("handler failed")
	_, err = allowed.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestChain_EmptyAllows(t *testing.T) {
	assert.True(t, NewChain(nil).Evaluate(context.Background()).Allowed())
}

type flipAuth struct {
	after time.Time
}

func (f flipAuth) Snapshot() identity.Snapshot {
	if time.Now().After(f.after) {
		return identity.Snapshot{State: identity.StateAuthenticated, Principal: security.Principal{UserID: "u1"}}
	}
	return identity.Snapshot{State: identity.StateLoading}
}

func TestChain_Await(t *testing.T) {
	c := NewChain([]Guard{AuthGuard{Source: flipAuth{after: time.Now().Add(20 * time.Millisecond)}}})
	d, err := c.Await(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c = NewChain([]Guard{AuthGuard{Source: authStub{State: identity.StateLoading}}})
	d, err = c.Await(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeLoading, d.Outcome)
}

func TestChain_AwaitRecordsOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	calls := 0
	observe := WithObserver(ObserverFunc(func(context.Context, Decision) { calls++ }))

	c := NewChain([]Guard{AuthGuard{Source: flipAuth{after: time.Now().Add(30 * time.Millisecond)}}},
		WithMeter(provider.Meter("test")), observe)
	d, err := c.Await(context.Background(), 2*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	calls = 0
	c = NewChain([]Guard{AuthGuard{Source: authStub{State: identity.StateLoading}}}, observe)
	d, err = c.Await(ctx, 2*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeLoading, d.Outcome)
	assert.Equal(t, 1, calls)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestChain_RecordsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	var observed []Decision
	c := Standard(AuthGuard{Source: authed}, TenantGuard{Source: tenantOK},
		PermissionGuard{Source: salesPerms(), Capability: domain.CanCreateUsers},
		WithMeter(provider.Meter("test")),
		WithObserver(ObserverFunc(func(_ context.Context, d Decision) { observed = append(observed, d) })),
	)
	c.Evaluate(context.Background())
	c.Evaluate(context.Background())

	require.Len(t, observed, 2)
	assert.Equal(t, ReasonPermissionDenied, observed[0].Reason)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "orgscope.guard.decisions", m.Name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}
