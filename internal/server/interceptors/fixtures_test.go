package interceptors

import (
	"context"
	"sync"
	"testing"
	"time"

	"orgscope/internal/access"
	membershipdomain "orgscope/internal/membership/domain"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission/domain"
	"orgscope/internal/selection"
)

// directory serves memberships and global roles from memory.
type directory struct {
	mu          sync.Mutex
	memberships map[string][]*membershipdomain.Membership
	roles       map[string]domain.RoleSet
}

func newDirectory() *directory {
	return &directory{
		memberships: map[string][]*membershipdomain.Membership{},
		roles:       map[string]domain.RoleSet{},
	}
}

func (d *directory) join(userID, orgID string, joined time.Time, roles ...domain.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[userID] = append(d.memberships[userID], &membershipdomain.Membership{
		ID: userID + "/" + orgID, UserID: userID, OrgID: orgID, Active: true, JoinedAt: joined,
		Organization: &orgdomain.Org{ID: orgID, Name: orgID, Active: true},
	})
	for _, r := range roles {
		d.roles[userID] = d.roles[userID].Add(r)
	}
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

type recordedEvent struct {
	orgID, userID, action string
	metadata              map[string]string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) LogEvent(_ context.Context, orgID, userID, action, _ string, metadata map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{orgID: orgID, userID: userID, action: action, metadata: metadata})
}

func (r *eventRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.action)
	}
	return out
}

var joined = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, dir *directory, rec *eventRecorder) *access.Manager {
	t.Helper()
	deps := access.Deps{
		Memberships: dir,
		Orgs:        dir,
		Roles:       dir,
		Store:       selection.NewMemoryStore(),
	}
	if rec != nil {
		deps.Audit = rec
	}
	return access.NewManager(deps, access.Config{AwaitTimeout: time.Second})
}
