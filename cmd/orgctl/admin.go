package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	auditdomain "orgscope/internal/audit/domain"
	auditrepo "orgscope/internal/audit/repository"
	"orgscope/internal/config"
	"orgscope/internal/db"
	membershipdomain "orgscope/internal/membership/domain"
	membershiprepo "orgscope/internal/membership/repository"
	orgrepo "orgscope/internal/organization/repository"
	permissiondomain "orgscope/internal/permission/domain"
	policydomain "orgscope/internal/policy/domain"
	policyrepo "orgscope/internal/policy/repository"
	rolerepo "orgscope/internal/role/repository"
)

// directory is the operator view of the database used by the admin commands.
type directory interface {
	Grant(ctx context.Context, userID, orgID, role string) (*permissiondomain.RoleAssignment, error)
	AddMember(ctx context.Context, orgID, userID string) (*membershipdomain.Membership, error)
	Policies(ctx context.Context, orgID string) ([]*policydomain.Policy, error)
	SetPolicyEnabled(ctx context.Context, id string, enabled bool) error
	AuditLog(ctx context.Context, orgID string, limit int32) ([]*auditdomain.AuditLog, error)
	Close() error
}

type directoryOpener func(ctx context.Context) (directory, error)

var errAlreadyMember = errors.New("user is already an active member")

type memberStore interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
	Create(ctx context.Context, m *membershipdomain.Membership) error
}

type sqlDirectory struct {
	close       func() error
	orgs        orgrepo.Repository
	memberships memberStore
	roles       rolerepo.Granter
	policies    policyrepo.Repository
	audit       auditrepo.Repository
	now         func() time.Time
}

func openDirectory(ctx context.Context) (directory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	scope := cfg.Scope()
	return &sqlDirectory{
		close:       conn.Close,
		orgs:        orgrepo.NewPostgresRepository(conn),
		memberships: membershiprepo.NewPostgresRepository(conn),
		roles:       rolerepo.NewCachedRepository(rolerepo.NewPostgresRepository(conn, scope, zap.NewNop()), scope, 0, 0),
		policies:    policyrepo.NewPostgresRepository(conn),
		audit:       auditrepo.NewPostgresRepository(conn),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (d *sqlDirectory) Grant(ctx context.Context, userID, orgID, role string) (*permissiondomain.RoleAssignment, error) {
	a := &permissiondomain.RoleAssignment{
		ID: uuid.NewString(), UserID: userID, OrgID: orgID, Role: role, Active: true, CreatedAt: d.now(),
	}
	return a, d.roles.Grant(ctx, a)
}

// AddMember adds userID to an existing organization unless an active membership exists.
func (d *sqlDirectory) AddMember(ctx context.Context, orgID, userID string) (*membershipdomain.Membership, error) {
	org, err := d.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}
	existing, err := d.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		return existing, errAlreadyMember
	}
	m := &membershipdomain.Membership{
		ID: uuid.NewString(), UserID: userID, OrgID: orgID, Active: true, JoinedAt: d.now(), Organization: org,
	}
	return m, d.memberships.Create(ctx, m)
}

func (d *sqlDirectory) Policies(ctx context.Context, orgID string) ([]*policydomain.Policy, error) {
	return d.policies.ListByOrg(ctx, orgID)
}

func (d *sqlDirectory) SetPolicyEnabled(ctx context.Context, id string, enabled bool) error {
	return d.policies.SetEnabled(ctx, id, enabled)
}

func (d *sqlDirectory) AuditLog(ctx context.Context, orgID string, limit int32) ([]*auditdomain.AuditLog, error) {
	return d.audit.ListByOrg(ctx, orgID, limit, 0)
}

func (d *sqlDirectory) Close() error { return d.close() }

func (c *cli) withDirectory(cmd *cobra.Command, fn func(ctx context.Context, d directory) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := c.openDir(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

func (c *cli) adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Operator commands that write to the database directly"}

	var orgID string
	grant := &cobra.Command{
		Use:   "grant USER_ID ROLE",
		Short: "Grant ROLE to USER_ID, globally or in --org",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := permissiondomain.ParseRole(args[1]); !ok {
				return fmt.Errorf("unknown role %q", args[1])
			}
			return c.withDirectory(cmd, func(ctx context.Context, d directory) error {
				a, err := d.Grant(ctx, args[0], orgID, args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s in %s (%s)\n", a.Role, a.UserID, scopeLabel(a.OrgID), a.ID)
				return err
			})
		},
	}
	grant.Flags().StringVar(&orgID, "org", "", "bind the assignment to an organization")

	addMember := &cobra.Command{
		Use:   "add-member ORG_ID USER_ID",
		Short: "Add USER_ID to ORG_ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDirectory(cmd, func(ctx context.Context, d directory) error {
				m, err := d.AddMember(ctx, args[0], args[1])
				if errors.Is(err, errAlreadyMember) {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is already a member of %s (%s)\n", args[1], args[0], m.ID)
					return err
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s (%s)\n", m.UserID, m.OrgID, m.ID)
				return err
			})
		},
	}

	policies := &cobra.Command{
		Use:   "policies ORG_ID",
		Short: "List the capability policies of ORG_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDirectory(cmd, func(ctx context.Context, d directory) error {
				list, err := d.Policies(ctx, args[0])
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tENABLED\tCREATED")
				for _, p := range list {
					fmt.Fprintf(tw, "%s\t%t\t%s\n", p.ID, p.Enabled, p.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	setPolicy := func(use string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " POLICY_ID",
			Short: use + " a capability policy",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withDirectory(cmd, func(ctx context.Context, d directory) error {
					if err := d.SetPolicyEnabled(ctx, args[0], enabled); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "policy %s enabled=%t\n", args[0], enabled)
					return err
				})
			},
		}
	}

	var limit int32
	auditCmd := &cobra.Command{
		Use:   "audit ORG_ID",
		Short: "Print recent audit entries of ORG_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDirectory(cmd, func(ctx context.Context, d directory) error {
				entries, err := d.AuditLog(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tUSER\tACTION\tRESOURCE\tMETADATA")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.UserID, e.Action, e.Resource, e.Metadata)
				}
				return tw.Flush()
			})
		},
	}
	auditCmd.Flags().Int32Var(&limit, "limit", 50, "maximum entries")

	admin.AddCommand(grant, addMember, policies, setPolicy("enable", true), setPolicy("disable", false), auditCmd)
	return admin
}

func scopeLabel(orgID string) string {
	if orgID == "" {
		return "every organization"
	}
	return "organization " + strconv.Quote(orgID)
}
