package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/issue"
)

func newIssuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Manage issues (via the API)",
	}
	cmd.AddCommand(newIssuesListCmd(), newIssuesCreateCmd(), newIssueStateCmd("activate"), newIssueStateCmd("archive"))
	return cmd
}

func newIssuesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List issues, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := newAPIClient().ListIssues(cmd.Context())
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), issues)
			}
			return printIssueTable(cmd.OutOrStdout(), issues)
		},
	}
}

func newIssuesCreateCmd() *cobra.Command {
	var n issue.NewIssue

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a pending issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n.Name = args[0]
			created, err := newAPIClient().CreateIssue(cmd.Context(), n)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), created)
			}
			printIssue(cmd.OutOrStdout(), created)
			return nil
		},
	}

	cmd.Flags().StringVar(&n.Description, "description", "", "issue description")
	cmd.Flags().StringVar(&n.RecipientName, "recipient", "", "recipient display name (default: Your Trustee)")
	cmd.Flags().StringSliceVar(&n.RecipientEmails, "email", nil, "recipient email (repeatable)")
	cmd.Flags().StringVar(&n.Date, "date", "", "meeting date (YYYY-MM-DD)")

	return cmd
}

// newIssueStateCmd builds the activate and archive subcommands.
func newIssueStateCmd(action string) *cobra.Command {
	short := "Make an issue the active one (archives the current one)"
	if action == "archive" {
		short = "Archive an issue"
	}

	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c := newAPIClient()
			var updated *issue.Issue
			if action == "activate" {
				updated, err = c.ActivateIssue(cmd.Context(), id)
			} else {
				updated, err = c.ArchiveIssue(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue #%d is now %s\n", updated.ID, updated.State)
			return nil
		},
	}
}
