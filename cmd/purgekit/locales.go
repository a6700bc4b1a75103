package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
	"github.com/kalambet/purgekit/internal/storage"
	"github.com/kalambet/purgekit/internal/task"
)

var localesCmd = &cobra.Command{
	Use:   "locales",
	Short: "Find and remove localization files of unused languages",
}

var localesScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List localization files that a purge would delete",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocales(cmd, false)
	},
}

var localesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete localization files of languages that are not kept",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocales(cmd, true)
	},
}

var localesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every installed localization with its locale tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := loadTree(cmd)
		if err != nil {
			return err
		}
		base, _ := cmd.Flags().GetString("base")
		for m, err := range tree.Localizations(base) {
			if err != nil {
				printWarning("%v", err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", m.Tag(), m.Path)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{localesScanCmd, localesPurgeCmd, localesListCmd} {
		c.Flags().String("rules", "", "localization rules file (.xml or .yaml)")
		c.Flags().String("base", "/", "directory the rule locations are relative to")
	}
	for _, c := range []*cobra.Command{localesScanCmd, localesPurgeCmd} {
		c.Flags().StringSlice("keep", nil, "locales to keep (default: preserved languages)")
	}
	localesPurgeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	localesCmd.AddCommand(localesScanCmd)
	localesCmd.AddCommand(localesPurgeCmd)
	localesCmd.AddCommand(localesListCmd)
}

func loadTree(cmd *cobra.Command) (*locale.Tree, error) {
	rules, _ := cmd.Flags().GetString("rules")
	if rules == "" {
		return locale.DefaultTree()
	}
	tree, err := locale.LoadRules(rules)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return tree, nil
}

// scanOptions is what runLocales reads from the preferences file.
type scanOptions struct {
	keep    []string
	confirm bool
	iec     bool
}

func readScanOptions(cmd *cobra.Command) (scanOptions, error) {
	var opts scanOptions
	err := withStore(func(s *config.Store) error {
		opts.keep, _ = cmd.Flags().GetStringSlice("keep")
		if len(opts.keep) == 0 {
			opts.keep = s.Languages()
		}
		var err error
		if opts.confirm, err = s.Bool("delete_confirmation"); err != nil {
			return err
		}
		opts.iec, err = s.Bool("units_iec")
		return err
	})
	return opts, err
}

func runLocales(cmd *cobra.Command, purge bool) error {
	opts, err := readScanOptions(cmd)
	if err != nil {
		return err
	}
	if len(opts.keep) == 0 {
		return fmt.Errorf("%w: run 'purgekit languages keep <code>' first", locale.ErrEmptyKeepSet)
	}
	tree, err := loadTree(cmd)
	if err != nil {
		return err
	}
	base, _ := cmd.Flags().GetString("base")

	if purge && opts.confirm {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm(fmt.Sprintf("Delete localization files for every language except %s?", strings.Join(opts.keep, ", ")))
			if err != nil {
				return err
			}
			if !ok {
				printWarning("Purge cancelled")
				return nil
			}
		}
	}

	store, err := openTasks()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := task.NewRunner(store, locale.NewResolver(tree, nil))
	id, events, err := runner.StartScan(ctx, task.ScanRequest{Base: base, Keep: opts.keep, Purge: purge})
	if err != nil {
		return err
	}
	defer runner.Wait()

	var done task.Event
	if interactive() {
		done, err = watchInteractive(events, func() { runner.Cancel(id) }, purge)
		if err != nil {
			runner.Cancel(id)
			done = watchPlain(io.Discard, events)
		}
	} else {
		done = watchPlain(cmd.OutOrStdout(), events)
	}
	return reportDone(done, purge, opts.iec)
}

// watchPlain prints one path per line until the run ends.
func watchPlain(w io.Writer, events <-chan task.Event) task.Event {
	var last task.Event
	for ev := range events {
		if ev.Kind == task.EventProgress {
			fmt.Fprintln(w, ev.Path)
		}
		last = ev
	}
	return last
}

func reportDone(ev task.Event, purge bool, iec bool) error {
	verb := "Found"
	if purge {
		verb = "Removed"
	}
	switch ev.Status {
	case storage.StatusCancelled:
		printWarning("Cancelled after %d paths (%s)", ev.Found, formatBytes(ev.Bytes, iec))
		return nil
	case storage.StatusFailed:
		return fmt.Errorf("task %s failed: %w", ev.TaskID, ev.Err)
	}
	if ev.Err != nil {
		printWarning("Some directories could not be read: %v", ev.Err)
	}
	printSuccess("%s %d paths (%s) in task %s", verb, ev.Found, formatBytes(ev.Bytes, iec), ev.TaskID)
	return nil
}

// interactive reports whether stdout is a terminal that can host the
// progress view.
func interactive() bool {
	return !noColor && isatty.IsTerminal(os.Stdout.Fd())
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses, so scripted runs must pass --yes.
func confirm(title string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, errors.New("confirmation required; pass --yes to run non-interactively")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
