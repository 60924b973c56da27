package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/client"
)

func newCommentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Moderate member comments (via the API)",
	}
	cmd.AddCommand(
		newCommentsListCmd(),
		newModerateCmd("approve", "Approve a comment and notify the member and recipients"),
		newModerateCmd("deny", "Deny a comment and notify the member"),
		newModerateCmd("pend", "Return a comment to pending review"),
		newFeatureCmd(),
		newCommentRemoveCmd(),
	)
	return cmd
}

func newCommentsListCmd() *cobra.Command {
	var f client.CommentFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List comments for moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comments, err := newAPIClient().ListComments(cmd.Context(), f)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), comments)
			}
			return printCommentTable(cmd.OutOrStdout(), comments)
		},
	}

	cmd.Flags().StringVar(&f.State, "state", "", "filter by state (pending|approved|denied|archived)")
	cmd.Flags().Int64Var(&f.IssueID, "issue", 0, "filter by issue ID")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of comments")

	return cmd
}

func newModerateCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModerate(cmd, args[0], action)
		},
	}
}

func newFeatureCmd() *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "feature <id>",
		Short: "Feature a comment at the top of the public listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "feature"
			if off {
				action = "unfeature"
			}
			return runModerate(cmd, args[0], action)
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "remove the featured mark")

	return cmd
}

func runModerate(cmd *cobra.Command, arg, action string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	c, err := newAPIClient().ModerateComment(cmd.Context(), id, action)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), c)
	}
	printComment(cmd.OutOrStdout(), c)
	return nil
}

func newCommentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a comment",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := newAPIClient().DeleteComment(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed comment #%d\n", id)
			return nil
		},
	}
}
