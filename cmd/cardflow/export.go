package main

import (
	"os"

	"github.com/spf13/cobra"

	"cardflow/internal/export"
)

func newExportCommand(cli *cliContext) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export parsed contacts to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cli.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, a.Logger)

			data, err := export.ContactsXLSX(a.Store.List(), a.Logger)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			cmd.Printf("contacts written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "contacts.xlsx", "output file path")
	return cmd
}
