package handler

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls OrganizationService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	return c.cc.Invoke(ctx, method, in, out, append(opts, grpc.CallContentSubtype(CodecName))...)
}

func (c *Client) ListOrganizations(ctx context.Context, in *ListOrganizationsRequest, opts ...grpc.CallOption) (*ListOrganizationsResponse, error) {
	out := new(ListOrganizationsResponse)
	if err := c.invoke(ctx, MethodListOrganizations, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SwitchOrganization(ctx context.Context, in *SwitchOrganizationRequest, opts ...grpc.CallOption) (*SwitchOrganizationResponse, error) {
	out := new(SwitchOrganizationResponse)
	if err := c.invoke(ctx, MethodSwitchOrganization, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrganization(ctx context.Context, in *CreateOrganizationRequest, opts ...grpc.CallOption) (*CreateOrganizationResponse, error) {
	out := new(CreateOrganizationResponse)
	if err := c.invoke(ctx, MethodCreateOrganization, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCapabilities(ctx context.Context, in *GetCapabilitiesRequest, opts ...grpc.CallOption) (*GetCapabilitiesResponse, error) {
	out := new(GetCapabilitiesResponse)
	if err := c.invoke(ctx, MethodGetCapabilities, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckCapability(ctx context.Context, in *CheckCapabilityRequest, opts ...grpc.CallOption) (*CheckCapabilityResponse, error) {
	out := new(CheckCapabilityResponse)
	if err := c.invoke(ctx, MethodCheckCapability, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
