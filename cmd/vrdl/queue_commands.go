package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vrdl/internal/ipc"
	"vrdl/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var packageName, displayName string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add <release>",
		Short: "Enqueue a release for download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			release := strings.TrimSpace(args[0])
			if release == "" {
				return errors.New("release name is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueAdd(ipc.QueueAddRequest{
					ReleaseName: release,
					PackageName: strings.TrimSpace(packageName),
					DisplayName: strings.TrimSpace(displayName),
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Added {
					fmt.Fprintf(out, "%s is already queued\n", release)
					return nil
				}
				fmt.Fprintf(out, "Queued %s\n", release)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&packageName, "package", "", "Android package name (looked up in the catalog when omitted)")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name (looked up in the catalog when omitted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the download queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueWatchCommand(ctx))
	queueCmd.AddCommand(newQueueInstallCommand(ctx))
	queueCmd.AddCommand(
		newReleaseCommand(ctx, releaseAction{
			use:   "remove",
			short: "Remove an item from the queue",
			done:  "Removed %s",
			call:  (*ipc.Client).QueueRemove,
		}),
		newReleaseCommand(ctx, releaseAction{
			use:   "cancel",
			short: "Cancel the running download or extraction",
			done:  "Cancelled %s",
			call:  (*ipc.Client).QueueCancel,
		}),
		newReleaseCommand(ctx, releaseAction{
			use:   "retry",
			short: "Re-queue a failed or cancelled item",
			done:  "Re-queued %s",
			call:  (*ipc.Client).QueueRetry,
		}),
		newReleaseCommand(ctx, releaseAction{
			use:   "delete-files",
			short: "Delete downloaded files and drop the item",
			done:  "Deleted files for %s",
			call:  (*ipc.Client).QueueDeleteFiles,
		}),
	)
	return queueCmd
}

// releaseAction describes a queue command that takes one release name and
// only reports success.
type releaseAction struct {
	use   string
	short string
	done  string
	call  func(*ipc.Client, string) error
}

func newReleaseCommand(ctx *commandContext, action releaseAction) *cobra.Command {
	return &cobra.Command{
		Use:   action.use + " <release>",
		Short: action.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			release := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if err := action.call(client, release); err != nil {
					return describeCommandError(release, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), action.done+"\n", release)
				return nil
			})
		},
	}
}

func newQueueInstallCommand(ctx *commandContext) *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "install <release>",
		Short: "Install a completed release onto a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			release := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.QueueInstall(release, strings.TrimSpace(deviceID)); err != nil {
					return describeCommandError(release, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Install started for %s\n", release)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Device serial (defaults to device.default_serial)")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queue items in queue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]string, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter = append(filter, string(status))
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderQueueTable(resp.Items))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show items with these statuses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

// describeCommandError adds a user-facing hint to classified queue errors.
func describeCommandError(release string, err error) error {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return fmt.Errorf("%s is not in the queue", release)
	case errors.Is(err, queue.ErrItemBusy):
		return fmt.Errorf("%s is busy; cancel it or wait for it to finish", release)
	case errors.Is(err, queue.ErrInvalidTransition):
		return fmt.Errorf("%s: %w", release, err)
	default:
		return err
	}
}
