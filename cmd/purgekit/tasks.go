package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/purgekit/internal/storage"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the history of scans and purges",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, err := openTasks()
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.ListTasks(limit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			printStep("No tasks yet")
			return nil
		}
		for _, t := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-5s  %-9s  %5d  %s\n",
				t.ID, t.CreatedAt.Local().Format("2006-01-02 15:04"), t.Kind,
				statusLabel(t.Status), t.Found, formatBytes(t.Bytes, false))
		}
		return nil
	},
}

func statusLabel(status string) string {
	switch status {
	case storage.StatusCompleted:
		return colorize(colorGreen, status)
	case storage.StatusFailed:
		return colorize(colorRed, status)
	case storage.StatusCancelled:
		return colorize(colorYellow, status)
	default:
		return colorize(colorCyan, status)
	}
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withPaths, _ := cmd.Flags().GetBool("paths")
		store, err := openTasks()
		if err != nil {
			return err
		}
		defer store.Close()

		t, err := store.GetTask(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("task %s not found", args[0])
		}
		if err != nil {
			return err
		}
		if !withPaths {
			return writeJSON(cmd.OutOrStdout(), t)
		}
		paths, err := store.TaskPaths(t.ID)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			storage.Task
			Paths []storage.TaskPath `json:"paths"`
		}{t, paths})
	},
}

var tasksReportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Render a Markdown summary of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTasks()
		if err != nil {
			return err
		}
		defer store.Close()

		t, err := store.GetTask(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("task %s not found", args[0])
		}
		if err != nil {
			return err
		}
		paths, err := store.TaskPaths(t.ID)
		if err != nil {
			return err
		}

		md := taskReport(t, paths)
		if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("creating renderer: %w", err)
		}
		out, err := r.Render(md)
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// taskReport formats a task and its paths as Markdown.
func taskReport(t storage.Task, paths []storage.TaskPath) string {
	var b strings.Builder
	title := "Task"
	switch t.Kind {
	case storage.KindScan:
		title = "Scan"
	case storage.KindPurge:
		title = "Purge"
	}
	fmt.Fprintf(&b, "# %s %s\n\n", title, t.ID)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | %s |\n", t.Status)
	fmt.Fprintf(&b, "| Base | `%s` |\n", t.Base)
	fmt.Fprintf(&b, "| Kept | %s |\n", strings.Join(t.Keep, ", "))
	fmt.Fprintf(&b, "| Started | %s |\n", t.CreatedAt.Format(time.RFC3339))
	if t.FinishedAt != nil {
		fmt.Fprintf(&b, "| Duration | %s |\n", t.FinishedAt.Sub(t.CreatedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "| Found | %d (%s) |\n", t.Found, formatBytes(t.Bytes, false))
	if t.LastError != "" {
		fmt.Fprintf(&b, "\n> **Last error:** %s\n", t.LastError)
	}
	if len(paths) == 0 {
		return b.String()
	}

	b.WriteString("\n## Paths\n\n")
	for _, p := range paths {
		mark := ""
		if p.Removed {
			mark = " ~~removed~~"
		}
		fmt.Fprintf(&b, "- `%s` %s%s\n", p.Path, formatBytes(p.Size, false), mark)
	}
	return b.String()
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a task running in the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/tasks/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Cancelling %s", args[0])
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a task and its paths from the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTasks()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteTask(args[0]); errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("task %s not found", args[0])
		} else if err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	tasksListCmd.Flags().Int("limit", 20, "maximum number of tasks")
	tasksShowCmd.Flags().Bool("paths", false, "include found paths")
	tasksCancelCmd.Flags().StringVar(&serverAddr, "addr", defaultAddr, "server address")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksReportCmd)
	tasksCmd.AddCommand(tasksCancelCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
}
