package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/zone"
)

func newZonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage geographic zones",
	}
	cmd.AddCommand(newZonesImportCmd(), newZonesExportCmd(), newZonesListCmd())
	return cmd
}

func newZonesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.geojson>",
		Short: "Import zone polygons from a GeoJSON FeatureCollection",
		Long:  "Create or update zones by name from a FeatureCollection. Each feature needs a Polygon or MultiPolygon geometry and a \"name\" property; \"trustee_name\" and \"trustee_email\" are optional.",
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

			res, err := zone.Import(cmd.Context(), zone.NewRepository(database), f)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported zones: %d created, %d updated\n", res.Created, res.Updated)
			return nil
		},
	}
}

func newZonesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write all zones as a GeoJSON FeatureCollection to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			return zone.Export(cmd.Context(), zone.NewRepository(database), cmd.OutOrStdout())
		},
	}
}

func newZonesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List zones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			zones, err := zone.NewRepository(database).List(cmd.Context())
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), zones)
			}
			return printZoneTable(cmd.OutOrStdout(), zones)
		},
	}
}
