package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/auth"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/zone"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows under a header with a dashed separator.
func table(out io.Writer, header []string, rows [][]string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	sep := make([]string, len(header))
	for i, h := range header {
		sep[i] = strings.Repeat("-", len(h))
	}
	for _, line := range append([][]string{header, sep}, rows...) {
		if _, err := fmt.Fprintln(w, strings.Join(line, "\t")); err != nil {
			return fmt.Errorf("writing table: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}
	return nil
}

// printIssueTable prints issues as a formatted table.
func printIssueTable(out io.Writer, issues []*issue.Issue) error {
	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}
	rows := make([][]string, 0, len(issues))
	for _, i := range issues {
		rows = append(rows, []string{
			fmt.Sprint(i.ID), i.State.String(), orDash(i.Date), truncate(i.Name, 40), i.RecipientLabel(),
		})
	}
	return table(out, []string{"ID", "STATE", "DATE", "NAME", "RECIPIENT"}, rows)
}

// printIssue prints a single issue in text format.
func printIssue(out io.Writer, i *issue.Issue) {
	fmt.Fprintf(out, "Issue #%d\n", i.ID)
	fmt.Fprintf(out, "  Name:       %s\n", i.Name)
	fmt.Fprintf(out, "  State:      %s\n", i.State)
	fmt.Fprintf(out, "  Date:       %s\n", orDash(i.Date))
	fmt.Fprintf(out, "  Recipient:  %s\n", i.RecipientLabel())
	if len(i.RecipientEmails) > 0 {
		fmt.Fprintf(out, "  Emails:     %s\n", strings.Join(i.RecipientEmails, ", "))
	}
}

// printCommentTable prints comments for moderation.
func printCommentTable(out io.Writer, comments []*comment.Comment) error {
	if len(comments) == 0 {
		fmt.Fprintln(out, "No comments.")
		return nil
	}
	rows := make([][]string, 0, len(comments))
	for _, c := range comments {
		featured := ""
		if c.IsFeatured {
			featured = "*"
		}
		rows = append(rows, []string{
			fmt.Sprint(c.ID), fmt.Sprint(c.IssueID), c.State.String() + featured,
			c.CreatedAt.Format("2006-01-02"), orDash(c.AuthorName), truncate(commentSummary(c), 50),
		})
	}
	if err := table(out, []string{"ID", "ISSUE", "STATE", "DATE", "AUTHOR", "COMMENT"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal: %d comments\n", len(comments))
	return nil
}

// printComment prints a single comment in text format.
func printComment(out io.Writer, c *comment.Comment) {
	featured := ""
	if c.IsFeatured {
		featured = " (featured)"
	}
	fmt.Fprintf(out, "Comment #%d: %s%s\n  %s\n", c.ID, c.State, featured, commentSummary(c))
}

func commentSummary(c *comment.Comment) string {
	switch b := c.Body.(type) {
	case comment.Written:
		return strings.Join(strings.Fields(b.Content), " ")
	case comment.Video:
		return "[video " + b.MediaRef + "]"
	case comment.Spoken:
		return "[recording " + b.MediaRef + "]"
	}
	return ""
}

// printZoneTable prints zones as a formatted table.
func printZoneTable(out io.Writer, zones []*zone.Zone) error {
	if len(zones) == 0 {
		fmt.Fprintln(out, "No zones found.")
		return nil
	}
	rows := make([][]string, 0, len(zones))
	for _, z := range zones {
		poly := "yes"
		if z.Geometry == nil {
			poly = "no"
		}
		rows = append(rows, []string{fmt.Sprint(z.ID), z.Name, orDash(z.TrusteeName), orDash(z.TrusteeEmail), poly})
	}
	return table(out, []string{"ID", "NAME", "TRUSTEE", "EMAIL", "POLYGON"}, rows)
}

func printSchoolTable(out io.Writer, schools []*account.School) error {
	if len(schools) == 0 {
		fmt.Fprintln(out, "No schools found.")
		return nil
	}
	rows := make([][]string, 0, len(schools))
	for _, s := range schools {
		boundary := "yes"
		if s.Boundary == nil {
			boundary = "no"
		}
		rows = append(rows, []string{fmt.Sprint(s.ID), s.Name, boundary})
	}
	return table(out, []string{"ID", "NAME", "BOUNDARY"}, rows)
}

// printAPIKeyTable prints API keys without their secrets.
func printAPIKeyTable(out io.Writer, keys []auth.APIKey) error {
	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys.")
		return nil
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		used := "never"
		if k.LastUsedAt != nil {
			used = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{fmt.Sprint(k.ID), k.Name, k.KeyPrefix + "...", k.CreatedAt.Format("2006-01-02"), used})
	}
	return table(out, []string{"ID", "NAME", "PREFIX", "CREATED", "LAST USED"}, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
