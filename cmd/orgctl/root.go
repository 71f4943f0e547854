package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	organizationhandler "orgscope/internal/organization/handler"
	"orgscope/internal/permission"
	"orgscope/internal/permission/domain"
)

type opener func(ctx context.Context, o options) (backend, error)

type cli struct {
	open    opener
	openDir directoryOpener
	opts   options
	asJSON bool
}

func newRootCmd(open opener, openDir directoryOpener) *cobra.Command {
	c := &cli{open: open, openDir: openDir}
	root := &cobra.Command{
		Use:           "orgctl",
		Short:         "Inspect and change the current organization and its capabilities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&c.opts.addr, "addr", "", "gRPC server address; empty runs against DATABASE_URL directly")
	f.StringVar(&c.opts.token, "token", "", "access token (default $ORGSCOPE_TOKEN)")
	f.StringVar(&c.opts.stateFile, "state", "", "selection file (default <config dir>/orgscope/state.json)")
	f.StringVar(&c.opts.logLevel, "log-level", "", "log level for local mode")
	f.BoolVar(&c.asJSON, "json", false, "print JSON")

	root.AddCommand(c.orgsCmd(), c.capsCmd(), c.checkCmd(), rolesCmd(), c.adminCmd())
	return root
}

// with opens a backend for one command and closes it afterwards.
func (c *cli) with(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := c.open(ctx, c.opts)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func (c *cli) orgsCmd() *cobra.Command {
	orgs := &cobra.Command{Use: "orgs", Short: "Manage organization membership and selection"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active memberships, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.with(cmd, func(ctx context.Context, b backend) error {
				resp, err := b.ListOrganizations(ctx, &organizationhandler.ListOrganizationsRequest{})
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				return printOrganizations(cmd.OutOrStdout(), resp)
			})
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch ORG_ID",
		Short: "Make ORG_ID the current organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, b backend) error {
				resp, err := b.SwitchOrganization(ctx, &organizationhandler.SwitchOrganizationRequest{OrganizationID: args[0]})
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "current organization: %s\n", resp.CurrentOrganizationID)
				return err
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an organization owned by the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, b backend) error {
				resp, err := b.CreateOrganization(ctx, &organizationhandler.CreateOrganizationRequest{Name: args[0], Description: description})
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\ncurrent organization: %s\n",
					resp.Organization.Name, resp.Organization.ID, orNone(resp.CurrentOrganizationID))
				return err
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "organization description")

	orgs.AddCommand(list, switchCmd, create)
	return orgs
}

func (c *cli) capsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print roles and effective capabilities in the current organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.with(cmd, func(ctx context.Context, b backend) error {
				resp, err := b.GetCapabilities(ctx, &organizationhandler.GetCapabilitiesRequest{})
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				return printCapabilities(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check CAPABILITY",
		Short: "Run the access guard chain for CAPABILITY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd, func(ctx context.Context, b backend) error {
				resp, err := b.CheckCapability(ctx, &organizationhandler.CheckCapabilityRequest{Capability: args[0]})
				if err != nil {
					return err
				}
				if c.asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				return printDecision(cmd.OutOrStdout(), args[0], resp)
			})
		},
	}
}

// rolesCmd prints the static role table; it needs no backend.
func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Print the capabilities each role grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tCAPABILITIES")
			for _, r := range domain.AllRoles() {
				caps := permission.Resolve(domain.NewRoleSet(r)).Granted()
				names := make([]string, 0, len(caps))
				for _, cp := range caps {
					names = append(names, cp.String())
				}
				fmt.Fprintf(w, "%s\t%s\n", r, strings.Join(names, ", "))
			}
			return w.Flush()
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOrganizations(w io.Writer, resp *organizationhandler.ListOrganizationsResponse) error {
	if resp.HasNoOrganizations {
		_, err := fmt.Fprintln(w, "no organizations; create one with: orgctl orgs create NAME")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tJOINED")
	for _, o := range resp.Organizations {
		mark := ""
		if o.ID == resp.CurrentOrganizationID {
			mark = "*"
		}
		joined := ""
		if !o.JoinedAt.IsZero() {
			joined = o.JoinedAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, o.ID, o.Name, joined)
	}
	return tw.Flush()
}

func printCapabilities(w io.Writer, resp *organizationhandler.GetCapabilitiesResponse) error {
	fmt.Fprintf(w, "organization: %s\n", orNone(resp.OrganizationID))
	fmt.Fprintf(w, "roles: %v\n", resp.Roles)
	granted := make([]string, 0, len(resp.Capabilities))
	for name, ok := range resp.Capabilities {
		if ok {
			granted = append(granted, name)
		}
	}
	sort.Strings(granted)
	for _, name := range granted {
		if _, err := fmt.Fprintf(w, "  %s\n", name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d of %d capabilities granted\n", len(granted), len(resp.Capabilities))
	return err
}

func printDecision(w io.Writer, capability string, resp *organizationhandler.CheckCapabilityResponse) error {
	if resp.Allowed {
		_, err := fmt.Fprintf(w, "%s: allowed\n", capability)
		return err
	}
	fmt.Fprintf(w, "%s: denied at %s (%s)\n", capability, resp.Stage, resp.Reason)
	if resp.Message != "" {
		fmt.Fprintf(w, "  %s\n", resp.Message)
	}
	if resp.Redirect != "" {
		fmt.Fprintf(w, "  redirect: %s\n", resp.Redirect)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
