package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vrdl/internal/api"
	"vrdl/internal/ipc"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the game list",
	}

	var asJSON bool
	searchCmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search releases by game, release, or package name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.TrimSpace(strings.Join(args, " "))
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CatalogSearch(term)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintf(out, "No catalog entries match %q\n", term)
					return nil
				}
				fmt.Fprint(out, renderCatalogTable(resp.Entries))
				return nil
			})
		},
	}
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	catalogCmd.AddCommand(searchCmd)
	return catalogCmd
}

func renderCatalogTable(entries []api.CatalogEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		size := ""
		if entry.SizeMB > 0 {
			size = humanize.IBytes(uint64(entry.SizeMB * 1024 * 1024))
		}
		rows = append(rows, []string{
			entry.GameName,
			entry.ReleaseName,
			entry.PackageName,
			entry.VersionCode,
			size,
		})
	}
	return renderTable([]tableColumn{
		{Header: "Game", MaxWidth: 32},
		{Header: "Release", MaxWidth: 48},
		{Header: "Package"},
		{Header: "Version", Align: alignRight},
		{Header: "Size", Align: alignRight},
	}, rows)
}
