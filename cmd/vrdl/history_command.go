package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vrdl/internal/api"
	"vrdl/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var release string
	var kinds []string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded download and install outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(ipc.HistoryRequest{
					ReleaseName: strings.TrimSpace(release),
					Kinds:       kinds,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No history recorded")
					return nil
				}
				fmt.Fprint(out, renderHistoryTable(resp.Entries))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&release, "release", "r", "", "Only show entries for this release")
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Only show these kinds (completed, failed, cancelled, installed, install_failed, removed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func renderHistoryTable(entries []api.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		when := entry.RecordedAt
		if ts, ok := api.ParseTime(entry.RecordedAt); ok {
			when = humanize.Time(ts)
		}
		duration := ""
		if entry.DurationMS > 0 {
			duration = (time.Duration(entry.DurationMS) * time.Millisecond).Round(time.Second).String()
		}
		detail := entry.Message
		if entry.DeviceID != "" {
			detail = strings.TrimSpace("device " + entry.DeviceID + " " + detail)
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			when,
			entry.ReleaseName,
			formatStatusLabel(entry.Kind),
			duration,
			truncate(detail, 60),
		})
	}
	return renderTable([]tableColumn{
		{Header: "ID", Align: alignRight},
		{Header: "When"},
		{Header: "Release", MaxWidth: 40},
		{Header: "Outcome"},
		{Header: "Took", Align: alignRight},
		{Header: "Detail"},
	}, rows)
}
