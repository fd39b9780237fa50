package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"vrdl/internal/api"
	"vrdl/internal/ipc"
)

func newQueueWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var untilIdle bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the active download until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = time.Second
			}
			watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				w := newQueueWatcher(out, isTerminal(out))
				return w.run(watchCtx, client.QueueList, interval, untilIdle)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	cmd.Flags().BoolVar(&untilIdle, "until-idle", false, "Exit once nothing is downloading, extracting, or installing")
	return cmd
}

// queueWatcher renders the active item either as a live progress bar or,
// when output is not a terminal, as one line per change.
type queueWatcher struct {
	out         io.Writer
	interactive bool

	bar      *progressbar.ProgressBar
	barKey   string
	lastLine string
}

func newQueueWatcher(out io.Writer, interactive bool) *queueWatcher {
	return &queueWatcher{out: out, interactive: interactive}
}

func (w *queueWatcher) run(ctx context.Context, list func([]string) (*ipc.QueueListResponse, error), interval time.Duration, untilIdle bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.finish()

	for {
		resp, err := list(nil)
		if err != nil {
			return err
		}
		active := activeItem(resp.Items)
		w.render(active)
		if untilIdle && active == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *queueWatcher) render(item *api.QueueItem) {
	if item == nil {
		w.finish()
		w.printLine("Idle")
		return
	}
	percent := watchPercent(*item)
	if !w.interactive {
		line := fmt.Sprintf("%s %s %d%%", item.ReleaseName, formatStatusLabel(item.Status), percent)
		if rate := queueItemRate(*item); rate != "" {
			line += " (" + rate + ")"
		}
		w.printLine(line)
		return
	}

	key := item.ReleaseName + "/" + item.Status
	if w.bar == nil || w.barKey != key {
		w.finish()
		w.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w.out),
			progressbar.OptionSetDescription(fmt.Sprintf("%s [%s]", truncate(item.ReleaseName, 40), formatStatusLabel(item.Status))),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
		)
		w.barKey = key
		w.lastLine = ""
	}
	_ = w.bar.Set(percent)
}

func (w *queueWatcher) printLine(line string) {
	if line == w.lastLine {
		return
	}
	w.lastLine = line
	fmt.Fprintln(w.out, line)
}

func (w *queueWatcher) finish() {
	if w.bar == nil {
		return
	}
	_ = w.bar.Finish()
	fmt.Fprintln(w.out)
	w.bar = nil
	w.barKey = ""
}

// activeItem returns the item currently owned by a stage, if any.
func activeItem(items []api.QueueItem) *api.QueueItem {
	for i := range items {
		switch items[i].Status {
		case "downloading", "extracting", "installing":
			return &items[i]
		}
	}
	return nil
}

func watchPercent(item api.QueueItem) int {
	if item.Status == "extracting" {
		if item.ExtractProgress != nil {
			return *item.ExtractProgress
		}
		return 0
	}
	if item.Status == "installing" {
		return 0
	}
	return item.Progress
}
