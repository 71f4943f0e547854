package handler

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"orgscope/internal/access"
	membershipdomain "orgscope/internal/membership/domain"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission/domain"
	"orgscope/internal/security"
	"orgscope/internal/selection"
	"orgscope/internal/server/interceptors"
)

type directory struct {
	mu          sync.Mutex
	memberships map[string][]*membershipdomain.Membership
	roles       map[string]domain.RoleSet
}

func (d *directory) join(userID, orgID string, joined time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[userID] = append(d.memberships[userID], &membershipdomain.Membership{
		ID: userID + "/" + orgID, UserID: userID, OrgID: orgID, Active: true, JoinedAt: joined,
		Organization: &orgdomain.Org{ID: orgID, Name: "Org " + orgID, OwnerID: "founder", Active: true},
	})
}

func (d *directory) ListActiveByUser(_ context.Context, userID string) ([]*membershipdomain.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*membershipdomain.Membership(nil), d.memberships[userID]...), nil
}

func (d *directory) CreateWithOwner(_ context.Context, o *orgdomain.Org, owner *membershipdomain.Membership) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := *owner
	m.Organization = o
	d.memberships[owner.UserID] = append(d.memberships[owner.UserID], &m)
	return nil
}

func (d *directory) ActiveRoles(_ context.Context, userID, _ string) (domain.RoleSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[userID], nil
}

type harness struct {
	client *Client
	tokens *security.TokenProvider
	dir    *directory
}

func newHarness(t *testing.T, cfg access.Config) *harness {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	dir := &directory{memberships: map[string][]*membershipdomain.Membership{}, roles: map[string]domain.RoleSet{}}
	manager := access.NewManager(access.Deps{
		Memberships: dir,
		Orgs:        dir,
		Roles:       dir,
		Tokens:      tokens,
		Store:       selection.NewMemoryStore(),
	}, cfg)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		interceptors.AuthUnary(tokens, nil),
		interceptors.AccessUnary(manager, AccessRules(), nil, nil),
	))
	RegisterOrganizationServiceServer(srv, NewServer(nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{client: NewClient(conn), tokens: tokens, dir: dir}
}

func (h *harness) as(t *testing.T, userID string) context.Context {
	t.Helper()
	token, _, err := h.tokens.IssueAccess("session-"+userID, userID, "")
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestListAndSwitch(t *testing.T) {
	h := newHarness(t, access.Config{})
	h.dir.join("u1", "A", base)
	h.dir.join("u1", "B", base.Add(48*time.Hour))
	ctx := h.as(t, "u1")

	list, err := h.client.ListOrganizations(ctx, &ListOrganizationsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Organizations, 2)
	assert.Equal(t, "B", list.CurrentOrganizationID)
	assert.False(t, list.HasNoOrganizations)
	assert.Equal(t, "Org A", list.Organizations[0].Name)

	sw, err := h.client.SwitchOrganization(ctx, &SwitchOrganizationRequest{OrganizationID: "A"})
	require.NoError(t, err)
	assert.Equal(t, "A", sw.CurrentOrganizationID)

	// The switch persisted, so the next request starts in A.
	list, err = h.client.ListOrganizations(ctx, &ListOrganizationsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "A", list.CurrentOrganizationID)

	_, err = h.client.SwitchOrganization(ctx, &SwitchOrganizationRequest{OrganizationID: "Z"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = h.client.SwitchOrganization(ctx, &SwitchOrganizationRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateFirstOrganization(t *testing.T) {
	h := newHarness(t, access.Config{SwitchOnCreate: true})
	h.dir.roles["u1"] = domain.NewRoleSet(domain.RoleSales)
	ctx := h.as(t, "u1")

	list, err := h.client.ListOrganizations(ctx, &ListOrganizationsRequest{})
	require.NoError(t, err)
	assert.True(t, list.HasNoOrganizations)
	assert.Empty(t, list.Organizations)

	_, err = h.client.GetCapabilities(ctx, &GetCapabilitiesRequest{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.CreateOrganization(ctx, &CreateOrganizationRequest{Name: "  "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	created, err := h.client.CreateOrganization(ctx, &CreateOrganizationRequest{Name: "Acme", Description: "first"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Organization.Name)
	assert.Equal(t, "u1", created.Organization.OwnerID)
	assert.Equal(t, created.Organization.ID, created.CurrentOrganizationID)

	caps, err := h.client.GetCapabilities(ctx, &GetCapabilitiesRequest{})
	require.NoError(t, err)
	assert.Equal(t, created.Organization.ID, caps.OrganizationID)
	assert.Equal(t, []string{"sales"}, caps.Roles)
	assert.True(t, caps.Capabilities["canViewOrders"])
	assert.False(t, caps.Capabilities["canCreateUsers"])
}

func TestCheckCapability(t *testing.T) {
	h := newHarness(t, access.Config{})
	h.dir.join("u1", "A", base)
	h.dir.roles["u1"] = domain.NewRoleSet(domain.RoleWarehouse)
	ctx := h.as(t, "u1")

	res, err := h.client.CheckCapability(ctx, &CheckCapabilityRequest{Capability: "canEditInventory"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = h.client.CheckCapability(ctx, &CheckCapabilityRequest{Capability: "canEditOrders"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "permission", res.Stage)
	assert.Equal(t, "permission_denied", res.Reason)

	_, err = h.client.CheckCapability(ctx, &CheckCapabilityRequest{Capability: "canFly"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUnauthenticated(t *testing.T) {
	h := newHarness(t, access.Config{})
	_, err := h.client.ListOrganizations(context.Background(), &ListOrganizationsRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_WithoutSession(t *testing.T) {
	_, err := NewServer(nil).ListOrganizations(context.Background(), &ListOrganizationsRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestCodecRegistered(t *testing.T) {
	assert.Equal(t, "orgscope-json", CodecName)
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.IsType(t, Codec{}, c)

	b, err := c.Marshal(&CheckCapabilityRequest{Capability: "canViewOrders"})
	require.NoError(t, err)
	var out CheckCapabilityRequest
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, "canViewOrders", out.Capability)
}
