package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"orgscope/internal/access"
	auditdomain "orgscope/internal/audit/domain"
	healthhandler "orgscope/internal/health/handler"
	membershipdomain "orgscope/internal/membership/domain"
	organizationhandler "orgscope/internal/organization/handler"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission/domain"
	"orgscope/internal/security"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, _ interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

type staticDirectory struct {
	memberships []*membershipdomain.Membership
	roles       domain.RoleSet
}

func (d staticDirectory) ListActiveByUser(context.Context, string) ([]*membershipdomain.Membership, error) {
	return d.memberships, nil
}

func (d staticDirectory) CreateWithOwner(context.Context, *orgdomain.Org, *membershipdomain.Membership) error {
	return nil
}

func (d staticDirectory) ActiveRoles(context.Context, string, string) (domain.RoleSet, error) {
	return d.roles, nil
}

type auditSink struct {
	actions []string
}

func (a *auditSink) LogEvent(_ context.Context, _, _, action, _ string, _ map[string]string) {
	a.actions = append(a.actions, action)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	assert.Equal(t, []string{organizationhandler.ServiceName}, reg.services)

	reg = &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: healthhandler.NewServer(nil, nil, nil)})
	assert.Equal(t, []string{organizationhandler.ServiceName, "grpc.health.v1.Health"}, reg.services)
}

func TestPublicMethodsAreNotAccessMapped(t *testing.T) {
	rules := AccessRules()
	for m := range PublicMethods() {
		_, mapped := rules[m]
		assert.False(t, mapped, m)
	}
	assert.Contains(t, rules, organizationhandler.MethodGetCapabilities)
}

func TestNewGRPCServer_EndToEnd(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	org := &orgdomain.Org{ID: "A", Name: "Acme", OwnerID: "u1", Active: true}
	dir := staticDirectory{
		memberships: []*membershipdomain.Membership{{ID: "m1", UserID: "u1", OrgID: "A", Active: true,
			JoinedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Organization: org}},
		roles: domain.NewRoleSet(domain.RoleSales),
	}
	manager := access.NewManager(access.Deps{Memberships: dir, Orgs: dir, Roles: dir, Tokens: tokens}, access.Config{})
	sink := &auditSink{}
	hs := healthhandler.NewServer(nil, nil, nil)
	hs.Probe(context.Background())

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(Deps{Manager: manager, Tokens: tokens, Audit: sink, Health: hs, DisableTelemetry: true})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	client := organizationhandler.NewClient(conn)
	_, err = client.GetCapabilities(ctx, &organizationhandler.GetCapabilitiesRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token, _, err := tokens.IssueAccess("", "u1", "")
	require.NoError(t, err)
	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	caps, err := client.GetCapabilities(authed, &organizationhandler.GetCapabilitiesRequest{})
	require.NoError(t, err)
	assert.Equal(t, "A", caps.OrganizationID)
	assert.True(t, caps.Capabilities[domain.CanViewOrders.String()])
	assert.Equal(t, []string{auditdomain.ActionRPC}, sink.actions)
}
