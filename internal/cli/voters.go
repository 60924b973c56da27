package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/advocate/internal/voter"
)

func newVotersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voters",
		Short: "Manage imported voter records",
	}
	cmd.AddCommand(newVotersImportCmd(), newVotersCountCmd())
	return cmd
}

func newVotersImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import the county voter export",
		Long:  "Upsert voters by voter ID from the 34-column county export. The header row is skipped; rows that fail validation are reported and skipped.",
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

			res, err := voter.Import(cmd.Context(), voter.NewRepository(database), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Imported %d voters (%d new), %d rows rejected\n", res.Imported, res.Created, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %s\n", e.Error())
			}
			return nil
		},
	}
}

func newVotersCountCmd() *cobra.Command {
	var zoneNum int

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count imported voters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			n, err := voter.NewRepository(database).Count(cmd.Context(), zoneNum)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]int{"count": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().IntVar(&zoneNum, "zone", 0, "only count voters in this zone (1-5)")

	return cmd
}
