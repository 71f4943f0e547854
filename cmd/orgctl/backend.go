package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"orgscope/internal/access"
	"orgscope/internal/app"
	"orgscope/internal/config"
	"orgscope/internal/logging"
	organizationhandler "orgscope/internal/organization/handler"
	"orgscope/internal/selection"
	"orgscope/internal/server/interceptors"
)

// backend serves the organization operations for one invocation.
type backend interface {
	organizationhandler.OrganizationServiceServer
	Close() error
}

type options struct {
	addr      string
	token     string
	stateFile string
	logLevel  string
}

// openBackend returns a remote backend when addr is set, otherwise a local one.
func openBackend(ctx context.Context, o options) (backend, error) {
	if o.token == "" {
		o.token = os.Getenv("ORGSCOPE_TOKEN")
	}
	if o.token == "" {
		return nil, errors.New("no access token: pass --token or set ORGSCOPE_TOKEN")
	}
	store, err := selection.NewFileStore(o.stateFile)
	if err != nil {
		return nil, err
	}
	if o.addr != "" {
		return dialRemote(o.addr, o.token, store)
	}
	return openLocal(ctx, o, store)
}

// remote calls a running server. The selection is kept in the local file store and sent
// as the organization hint on every call.
type remote struct {
	conn   *grpc.ClientConn
	client *organizationhandler.Client
	token  string
	store  selection.Store
}

func dialRemote(addr, token string, store selection.Store) (*remote, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &remote{conn: conn, client: organizationhandler.NewClient(conn), token: token, store: store}, nil
}

func (r *remote) outgoing(ctx context.Context) context.Context {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+r.token)
	if hint, err := r.store.Load(ctx, ""); err == nil && hint != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, interceptors.OrgHintHeader, hint)
	}
	return ctx
}

func (r *remote) remember(ctx context.Context, orgID string) {
	if orgID != "" {
		_ = r.store.Save(ctx, "", orgID)
	}
}

func (r *remote) ListOrganizations(ctx context.Context, in *organizationhandler.ListOrganizationsRequest) (*organizationhandler.ListOrganizationsResponse, error) {
	return r.client.ListOrganizations(r.outgoing(ctx), in)
}

func (r *remote) SwitchOrganization(ctx context.Context, in *organizationhandler.SwitchOrganizationRequest) (*organizationhandler.SwitchOrganizationResponse, error) {
	out, err := r.client.SwitchOrganization(r.outgoing(ctx), in)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, out.CurrentOrganizationID)
	return out, nil
}

func (r *remote) CreateOrganization(ctx context.Context, in *organizationhandler.CreateOrganizationRequest) (*organizationhandler.CreateOrganizationResponse, error) {
	out, err := r.client.CreateOrganization(r.outgoing(ctx), in)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, out.CurrentOrganizationID)
	return out, nil
}

func (r *remote) GetCapabilities(ctx context.Context, in *organizationhandler.GetCapabilitiesRequest) (*organizationhandler.GetCapabilitiesResponse, error) {
	return r.client.GetCapabilities(r.outgoing(ctx), in)
}

func (r *remote) CheckCapability(ctx context.Context, in *organizationhandler.CheckCapabilityRequest) (*organizationhandler.CheckCapabilityResponse, error) {
	return r.client.CheckCapability(r.outgoing(ctx), in)
}

func (r *remote) Close() error { return r.conn.Close() }

// local runs the access core in process against the configured database.
type local struct {
	app     *app.App
	session *access.Session
	server  *organizationhandler.Server
}

func openLocal(ctx context.Context, o options, store selection.Store) (*local, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	level := o.logLevel
	if level == "" {
		level = "warn"
	}
	log, err := logging.New(level, false)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, log, app.Options{StoreKind: selection.KindMemory})
	if err != nil {
		return nil, err
	}
	sess := a.Manager.NewSession(store)
	if err := sess.Bootstrap(ctx, o.token); err != nil {
		log.Debug("bootstrap", zap.Error(err))
	}
	return &local{app: a, session: sess, server: organizationhandler.NewServer(log)}, nil
}

func (l *local) ctx(ctx context.Context) context.Context {
	return interceptors.WithSession(ctx, l.session)
}

func (l *local) ListOrganizations(ctx context.Context, in *organizationhandler.ListOrganizationsRequest) (*organizationhandler.ListOrganizationsResponse, error) {
	return l.server.ListOrganizations(l.ctx(ctx), in)
}

func (l *local) SwitchOrganization(ctx context.Context, in *organizationhandler.SwitchOrganizationRequest) (*organizationhandler.SwitchOrganizationResponse, error) {
	return l.server.SwitchOrganization(l.ctx(ctx), in)
}

func (l *local) CreateOrganization(ctx context.Context, in *organizationhandler.CreateOrganizationRequest) (*organizationhandler.CreateOrganizationResponse, error) {
	return l.server.CreateOrganization(l.ctx(ctx), in)
}

func (l *local) GetCapabilities(ctx context.Context, in *organizationhandler.GetCapabilitiesRequest) (*organizationhandler.GetCapabilitiesResponse, error) {
	return l.server.GetCapabilities(l.ctx(ctx), in)
}

func (l *local) CheckCapability(ctx context.Context, in *organizationhandler.CheckCapabilityRequest) (*organizationhandler.CheckCapabilityResponse, error) {
	return l.server.CheckCapability(l.ctx(ctx), in)
}

func (l *local) Close() error {
	l.session.Close()
	return l.app.Close(context.Background())
}
