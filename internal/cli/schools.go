package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/account"
)

func newSchoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schools",
		Short: "Manage schools members' students attend",
	}
	cmd.AddCommand(newSchoolsImportCmd(), newSchoolsExportCmd(), newSchoolsListCmd())
	return cmd
}

func newSchoolsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.geojson>",
		Short: "Import schools from a GeoJSON FeatureCollection",
		Long:  "Create or update schools by name from a FeatureCollection. Each feature needs a \"name\" property; its geometry is the attendance boundary and may be a Polygon, a MultiPolygon or null.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			res, err := account.ImportSchools(cmd.Context(), account.NewRepository(database), f)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported schools: %d created, %d updated\n", res.Created, res.Updated)
			return nil
		},
	}
}

func newSchoolsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write schools with a boundary as a GeoJSON FeatureCollection to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			return account.ExportSchools(cmd.Context(), account.NewRepository(database), cmd.OutOrStdout())
		},
	}
}

func newSchoolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			schools, err := account.NewRepository(database).ListSchools(cmd.Context())
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), schools)
			}
			return printSchoolTable(cmd.OutOrStdout(), schools)
		},
	}
}
