// Package handler serves the caller's organizations and capabilities over gRPC.
//
// Messages are plain Go structs encoded with the JSON codec registered by this package.
// Every method runs inside the access session that the access interceptor opens for the
// request; AccessRules lists the guard requirement of each method.
package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"orgscope/internal/access"
	membershipdomain "orgscope/internal/membership/domain"
	"orgscope/internal/orgcontext"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission"
	"orgscope/internal/permission/domain"
	"orgscope/internal/server/interceptors"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "orgscope.v1.OrganizationService"

// Full method names.
const (
	MethodListOrganizations  = "/" + ServiceName + "/ListOrganizations"
	MethodSwitchOrganization = "/" + ServiceName + "/SwitchOrganization"
	MethodCreateOrganization = "/" + ServiceName + "/CreateOrganization"
	MethodGetCapabilities    = "/" + ServiceName + "/GetCapabilities"
	MethodCheckCapability    = "/" + ServiceName + "/CheckCapability"
)

// AccessRules returns the guard requirement of each method. Organization management only
// needs a signed-in user so that a user without memberships can create the first one.
func AccessRules() map[string]access.Requirement {
	return map[string]access.Requirement{
		MethodListOrganizations:  access.Authenticated(),
		MethodSwitchOrganization: access.Authenticated(),
		MethodCreateOrganization: access.Authenticated(),
		MethodGetCapabilities:    access.Tenant(),
		MethodCheckCapability:    access.Authenticated(),
	}
}

// OrganizationServiceServer is the server API of OrganizationService.
type OrganizationServiceServer interface {
	ListOrganizations(context.Context, *ListOrganizationsRequest) (*ListOrganizationsResponse, error)
	SwitchOrganization(context.Context, *SwitchOrganizationRequest) (*SwitchOrganizationResponse, error)
	CreateOrganization(context.Context, *CreateOrganizationRequest) (*CreateOrganizationResponse, error)
	GetCapabilities(context.Context, *GetCapabilitiesRequest) (*GetCapabilitiesResponse, error)
	CheckCapability(context.Context, *CheckCapabilityRequest) (*CheckCapabilityResponse, error)
}

// ServiceDesc describes OrganizationService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrganizationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListOrganizations", OrganizationServiceServer.ListOrganizations),
		unary("SwitchOrganization", OrganizationServiceServer.SwitchOrganization),
		unary("CreateOrganization", OrganizationServiceServer.CreateOrganization),
		unary("GetCapabilities", OrganizationServiceServer.GetCapabilities),
		unary("CheckCapability", OrganizationServiceServer.CheckCapability),
	},
	Metadata: "orgscope/v1/organization",
}

// RegisterOrganizationServiceServer registers srv with s.
func RegisterOrganizationServiceServer(s grpc.ServiceRegistrar, srv OrganizationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(OrganizationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OrganizationServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// Server implements OrganizationServiceServer on the request's access session.
type Server struct {
	log *zap.Logger
}

// NewServer returns a new Organization gRPC server.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log}
}

// ListOrganizations returns the caller's active memberships and current selection.
func (s *Server) ListOrganizations(ctx context.Context, _ *ListOrganizationsRequest) (*ListOrganizationsResponse, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	snap := sess.Organizations().Snapshot()
	if snap.State == orgcontext.StateFailed {
		return nil, s.statusFor(snap.Err)
	}
	resp := &ListOrganizationsResponse{
		Organizations:         make([]Organization, 0, len(snap.Organizations)),
		CurrentOrganizationID: snap.CurrentID(),
		HasNoOrganizations:    snap.HasNoOrganizations,
	}
	for _, m := range snap.Organizations {
		resp.Organizations = append(resp.Organizations, fromMembership(m))
	}
	return resp, nil
}

// SwitchOrganization changes the caller's current organization.
func (s *Server) SwitchOrganization(ctx context.Context, req *SwitchOrganizationRequest) (*SwitchOrganizationResponse, error) {
	if req.OrganizationID == "" {
		return nil, status.Error(codes.InvalidArgument, "organization_id is required")
	}
	sess, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Switch(ctx, req.OrganizationID); err != nil {
		return nil, s.statusFor(err)
	}
	return &SwitchOrganizationResponse{CurrentOrganizationID: sess.Organizations().Snapshot().CurrentID()}, nil
}

// CreateOrganization creates an organization owned by the caller.
func (s *Server) CreateOrganization(ctx context.Context, req *CreateOrganizationRequest) (*CreateOrganizationResponse, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	org, err := sess.Create(ctx, req.Name, req.Description)
	if org == nil {
		return nil, s.statusFor(err)
	}
	if err != nil {
		// The organization exists; only the follow-up reload failed.
		s.log.Warn("organization: reload after create failed", zap.String("org_id", org.ID), zap.Error(err))
	}
	return &CreateOrganizationResponse{
		Organization:          fromOrg(org),
		CurrentOrganizationID: sess.Organizations().Snapshot().CurrentID(),
	}, nil
}

// GetCapabilities returns the caller's roles and effective capabilities in the current organization.
func (s *Server) GetCapabilities(ctx context.Context, _ *GetCapabilitiesRequest) (*GetCapabilitiesResponse, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	snap := sess.Permissions().Snapshot()
	if snap.State == permission.StateFailed {
		return nil, s.statusFor(snap.Err)
	}
	roles := snap.Roles.Roles()
	resp := &GetCapabilitiesResponse{
		OrganizationID: sess.Organizations().Snapshot().CurrentID(),
		Roles:          make([]string, 0, len(roles)),
		Capabilities:   snap.Capabilities.Map(),
	}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, r.String())
	}
	return resp, nil
}

// CheckCapability runs the full guard chain for one capability and reports the decision.
func (s *Server) CheckCapability(ctx context.Context, req *CheckCapabilityRequest) (*CheckCapabilityResponse, error) {
	c, ok := domain.ParseCapability(req.Capability)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown capability %q", req.Capability)
	}
	sess, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	d, err := sess.Authorize(ctx, access.Capability(c, ""))
	if err != nil {
		return nil, status.Error(codes.DeadlineExceeded, "organization data is still loading")
	}
	return &CheckCapabilityResponse{
		Allowed:  d.Allowed(),
		Stage:    d.Stage.String(),
		Reason:   string(d.Reason),
		Message:  d.Message,
		Redirect: d.Redirect,
	}, nil
}

func sessionFrom(ctx context.Context) (*access.Session, error) {
	sess, ok := interceptors.SessionFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "no access session")
	}
	return sess, nil
}

func (s *Server) statusFor(err error) error {
	switch {
	case errors.Is(err, orgcontext.ErrInvalidSwitchTarget):
		return status.Error(codes.InvalidArgument, "organization is not one of your active memberships")
	case errors.Is(err, orgdomain.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orgcontext.ErrFetchFailure), errors.Is(err, permission.ErrFetchFailure):
		return status.Error(codes.Unavailable, "organization data unavailable; retry")
	case errors.Is(err, orgcontext.ErrNotReady):
		return status.Error(codes.FailedPrecondition, "organizations are not loaded")
	case errors.Is(err, orgcontext.ErrNoIdentity):
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.Error(codes.DeadlineExceeded, "request cancelled")
	default:
		s.log.Error("organization: request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func fromMembership(m *membershipdomain.Membership) Organization {
	o := fromOrg(m.Organization)
	o.JoinedAt = m.JoinedAt
	return o
}

func fromOrg(o *orgdomain.Org) Organization {
	return Organization{ID: o.ID, Name: o.Name, Description: o.Description, OwnerID: o.OwnerID}
}
