// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orgscope/internal/config"
	"orgscope/internal/db"
	"orgscope/internal/logging"
	membershipdomain "orgscope/internal/membership/domain"
	membershiprepo "orgscope/internal/membership/repository"
	orgdomain "orgscope/internal/organization/domain"
	orgrepo "orgscope/internal/organization/repository"
	permissiondomain "orgscope/internal/permission/domain"
	policydomain "orgscope/internal/policy/domain"
	policyrepo "orgscope/internal/policy/repository"
	rolerepo "orgscope/internal/role/repository"
	"orgscope/internal/security"
	userdomain "orgscope/internal/user/domain"
	userrepo "orgscope/internal/user/repository"
)

// accountingOnlyDeletes restricts order deletion in Acme to accounting.
const accountingOnlyDeletes = `package orgscope.capabilities

deny contains "canDeleteOrders" if {
	not "accounting" in input.roles
	input.capabilities.canDeleteOrders
}
`

const (
	devUserEmail    = "dev@example.com"
	salesUserEmail  = "sales@example.com"
	floorUserEmail  = "floor@example.com"
	newUserEmail    = "new@example.com"
	devUserID       = "dev-user-001"
	salesUserID     = "dev-user-002"
	floorUserID     = "dev-user-003"
	newUserID       = "dev-user-004"
	acmeOrgID       = "dev-org-001"
	globexOrgID     = "dev-org-002"
	devPolicyID     = "dev-policy-001"
	acmeOwnerID     = "dev-membership-001"
	globexOwnerID   = "dev-membership-002"
	salesAcmeID     = "dev-membership-003"
	salesGlobexID   = "dev-membership-004"
	floorAcmeID     = "dev-membership-005"
	devRoleID       = "dev-role-001"
	salesRoleID     = "dev-role-002"
	floorRoleID     = "dev-role-003"
	floorTenantRole = "dev-role-004"
)

type repos struct {
	users       *userrepo.PostgresRepository
	orgs        *orgrepo.PostgresRepository
	memberships *membershiprepo.PostgresRepository
	roles       *rolerepo.PostgresRepository
	policies    *policyrepo.PostgresRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	log := logging.Must(cfg.LogLevel, cfg.Production())
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	r := repos{
		users:       userrepo.NewPostgresRepository(conn),
		orgs:        orgrepo.NewPostgresRepository(conn),
		memberships: membershiprepo.NewPostgresRepository(conn),
		roles:       rolerepo.NewPostgresRepository(conn, cfg.Scope(), log),
		policies:    policyrepo.NewPostgresRepository(conn),
	}

	existing, err := r.users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	if existing == nil {
		if err := seed(ctx, r, time.Now().UTC()); err != nil {
			log.Fatal("seed", zap.Error(err))
		}
		log.Info("seed completed successfully")
	} else {
		log.Info("seed already applied, skipping", zap.String("email", devUserEmail))
	}

	printTokens(cfg, log)
}

func seed(ctx context.Context, r repos, now time.Time) error {
	for _, u := range []*userdomain.User{
		{ID: devUserID, Email: devUserEmail, Name: "Dev Admin"},
		{ID: salesUserID, Email: salesUserEmail, Name: "Sales Rep"},
		{ID: floorUserID, Email: floorUserEmail, Name: "Warehouse Lead"},
		{ID: newUserID, Email: newUserEmail, Name: "New Hire"},
	} {
		u.CreatedAt, u.UpdatedAt = now, now
		if err := r.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.Email, err)
		}
	}

	for _, o := range []struct {
		org     *orgdomain.Org
		ownerID string
	}{
		{&orgdomain.Org{ID: acmeOrgID, Name: "Acme Dev", Description: "Primary dev tenant", OwnerID: devUserID}, acmeOwnerID},
		{&orgdomain.Org{ID: globexOrgID, Name: "Globex Dev", OwnerID: devUserID}, globexOwnerID},
	} {
		o.org.Active, o.org.CreatedAt, o.org.UpdatedAt = true, now, now
		o.org.Settings = map[string]any{}
		owner := &membershipdomain.Membership{ID: o.ownerID, UserID: devUserID, OrgID: o.org.ID, Active: true, JoinedAt: now}
		if err := r.orgs.CreateWithOwner(ctx, o.org, owner); err != nil {
			return fmt.Errorf("create organization %s: %w", o.org.Name, err)
		}
	}

	// sales joined Globex later, so Globex is its default selection.
	for _, m := range []*membershipdomain.Membership{
		{ID: salesAcmeID, UserID: salesUserID, OrgID: acmeOrgID, Active: true, JoinedAt: now.Add(time.Minute)},
		{ID: salesGlobexID, UserID: salesUserID, OrgID: globexOrgID, Active: true, JoinedAt: now.Add(2 * time.Minute)},
		{ID: floorAcmeID, UserID: floorUserID, OrgID: acmeOrgID, Active: true, JoinedAt: now.Add(time.Minute)},
	} {
		if err := r.memberships.Create(ctx, m); err != nil {
			return fmt.Errorf("create membership %s: %w", m.ID, err)
		}
	}

	for _, a := range []*permissiondomain.RoleAssignment{
		{ID: devRoleID, UserID: devUserID, Role: permissiondomain.RoleAdmin.String()},
		{ID: salesRoleID, UserID: salesUserID, Role: permissiondomain.RoleSales.String()},
		{ID: floorRoleID, UserID: floorUserID, Role: permissiondomain.RoleAssistant.String()},
		{ID: floorTenantRole, UserID: floorUserID, OrgID: acmeOrgID, Role: permissiondomain.RoleWarehouse.String()},
	} {
		a.Active, a.CreatedAt = true, now
		if err := r.roles.Grant(ctx, a); err != nil {
			return fmt.Errorf("grant %s to %s: %w", a.Role, a.UserID, err)
		}
	}

	if err := r.policies.Create(ctx, &policydomain.Policy{
		ID: devPolicyID, OrgID: acmeOrgID, Rules: accountingOnlyDeletes, Enabled: true, CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// printTokens issues access tokens for the dev users when a signing key is configured.
func printTokens(cfg *config.Config, log *zap.Logger) {
	signer, pub, err := security.LoadKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil || signer == nil {
		log.Info("JWT_PRIVATE_KEY not set, no tokens issued")
		return
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	for _, u := range []struct{ email, id string }{
		{devUserEmail, devUserID},
		{salesUserEmail, salesUserID},
		{floorUserEmail, floorUserID},
		{newUserEmail, newUserID},
	} {
		tok, exp, err := tokens.IssueAccess("", u.id, "")
		if err != nil {
			log.Fatal("issue token", zap.String("user", u.email), zap.Error(err))
		}
		fmt.Printf("%s (expires %s)\n  %s\n", u.email, exp.Format(time.RFC3339), tok)
	}
}
