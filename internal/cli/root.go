// Package cli defines the cobra command tree for advocate.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/client"
	"github.com/evcraddock/advocate/internal/db"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adv",
		Short:         "Run and administer the advocate service",
		Long:          "Advocate collects moderated member comments on public issues and forwards them to the people responsible. This tool runs the API server and job worker and administers issues, comments, zones, schools and voter data.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: $ADV_DB, configured db_path or ~/.config/adv/advocate.db)")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newReconcileCmd(),
		newZonesCmd(),
		newSchoolsCmd(),
		newVotersCmd(),
		newAPIKeyCmd(),
		newIssuesCmd(),
		newCommentsCmd(),
		newConfigureCmd(),
		newVersionCmd(),
	)

	return root
}

// dbPath resolves the database path from --db, $ADV_DB, the saved db_path
// or the default.
func dbPath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if v := getDBPath(); v != "" {
		return v, nil
	}
	return db.DefaultPath()
}

// openDB opens the SQLite database for commands that work on it directly.
func openDB() (*sql.DB, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	return db.Open(path)
}

// newAPIClient creates an HTTP client for the advocate admin API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}
