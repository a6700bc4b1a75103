package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
)

// withStore opens the preferences file, runs fn and returns its error.
// Every mutation is already persisted by the store itself.
func withStore(fn func(s *config.Store) error) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	return fn(s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update cleaner preferences",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every preference with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withStore(func(s *config.Store) error {
			infos := s.ShowAll()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			for _, k := range infos {
				line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
				if !k.Stored {
					line += colorize(colorDim, " (default)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *config.Store) error {
			info, err := s.Describe(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.Value)
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		return withStore(func(s *config.Store) error {
			if _, err := s.Describe(key); err != nil {
				return err
			}
			if err := s.SetString(config.SectionMain, key, value); err != nil {
				return err
			}
			printSuccess("Set %s = %s", key, value)
			return nil
		})
	},
}

var configToggleCmd = &cobra.Command{
	Use:   "toggle <key>",
	Short: "Flip a boolean preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		return withStore(func(s *config.Store) error {
			if err := s.Toggle(key); err != nil {
				return err
			}
			now, err := s.Bool(key)
			if err != nil {
				return err
			}
			printSuccess("%s is now %t", key, now)
			return nil
		})
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether any stored boolean is unreadable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *config.Store) error {
			if s.IsCorrupt() {
				printWarning("%s has unreadable values", s.Path())
				return errors.New("preferences file is corrupt; run 'purgekit config reset'")
			}
			printSuccess("%s is valid", s.Path())
			return nil
		})
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the preferences file and start over",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if !yes {
			ok, err := confirm(fmt.Sprintf("Reset all preferences in %s?", path))
			if err != nil {
				return err
			}
			if !ok {
				printWarning("Reset cancelled")
				return nil
			}
		}
		if _, err := config.Reset(path, config.WithVersion(version)); err != nil {
			return err
		}
		printSuccess("Preferences reset")
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print as JSON")
	configResetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configToggleCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configResetCmd)
}

// --- languages ---

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "Choose which languages keep their localization files",
}

var languagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		keptOnly, _ := cmd.Flags().GetBool("kept")
		return withStore(func(s *config.Store) error {
			for _, code := range locale.Catalog() {
				keep := s.Language(code)
				if keptOnly && !keep {
					continue
				}
				mark := " "
				if keep {
					mark = colorize(colorGreen, "✓")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-8s %s\n", mark, code, locale.DisplayName(code))
			}
			return nil
		})
	},
}

func setLanguages(keep bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if !locale.IsKnown(id) {
				return fmt.Errorf("unknown language %q", id)
			}
		}
		return withStore(func(s *config.Store) error {
			for _, id := range args {
				if err := s.SetLanguage(id, keep); err != nil {
					return err
				}
			}
			verb := "Dropping"
			if keep {
				verb = "Keeping"
			}
			printSuccess("%s %s", verb, strings.Join(args, ", "))
			return nil
		})
	}
}

var languagesKeepCmd = &cobra.Command{
	Use:   "keep <code>...",
	Short: "Preserve localization files for languages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  setLanguages(true),
}

var languagesDropCmd = &cobra.Command{
	Use:   "drop <code>...",
	Short: "Stop preserving localization files for languages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  setLanguages(false),
}

func init() {
	languagesListCmd.Flags().Bool("kept", false, "only show preserved languages")
	languagesCmd.AddCommand(languagesListCmd)
	languagesCmd.AddCommand(languagesKeepCmd)
	languagesCmd.AddCommand(languagesDropCmd)
}

// --- lists ---

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show or replace named string lists",
}

var listsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a list, one item per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *config.Store) error {
			items, ok := s.List(args[0])
			if !ok {
				return fmt.Errorf("list %q is not set", args[0])
			}
			for _, it := range items {
				fmt.Fprintln(cmd.OutOrStdout(), it)
			}
			return nil
		})
	},
}

var listsSetCmd = &cobra.Command{
	Use:   "set <name> [item]...",
	Short: "Replace a list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *config.Store) error {
			if err := s.SetList(args[0], args[1:]); err != nil {
				return err
			}
			printSuccess("Set %s (%d items)", args[0], len(args)-1)
			return nil
		})
	},
}

func init() {
	listsCmd.AddCommand(listsShowCmd)
	listsCmd.AddCommand(listsSetCmd)
}

// --- paths ---

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Manage whitelisted and custom paths",
}

// pathKind maps a command argument to the store's path set accessors.
func pathKind(kind string) (get func(*config.Store) (config.PathSet, error), set func(*config.Store, config.PathSet) error, err error) {
	switch kind {
	case "whitelist":
		return (*config.Store).WhitelistPaths, (*config.Store).SetWhitelistPaths, nil
	case "custom":
		return (*config.Store).CustomPaths, (*config.Store).SetCustomPaths, nil
	default:
		return nil, nil, fmt.Errorf("unknown path kind %q (want whitelist or custom)", kind)
	}
}

var pathsShowCmd = &cobra.Command{
	Use:   "show [whitelist|custom]",
	Short: "Print stored paths",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []string{"whitelist", "custom"}
		if len(args) == 1 {
			kinds = args
		}
		return withStore(func(s *config.Store) error {
			for _, kind := range kinds {
				get, _, err := pathKind(kind)
				if err != nil {
					return err
				}
				p, err := get(s)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), colorize(colorBold, kind+":"))
				for _, f := range p.Files {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %s\n", config.PathFile, f)
				}
				for _, d := range p.Folders {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %s\n", config.PathFolder, d)
				}
			}
			return nil
		})
	},
}

// pathType returns the --type flag or, when unset, guesses from the
// filesystem. A path that does not exist is treated as a file.
func pathType(cmd *cobra.Command, path string) (string, error) {
	t, _ := cmd.Flags().GetString("type")
	switch t {
	case config.PathFile, config.PathFolder:
		return t, nil
	case "":
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			return config.PathFolder, nil
		}
		return config.PathFile, nil
	default:
		return "", fmt.Errorf("%w: %q", config.ErrUnknownPathType, t)
	}
}

var pathsAddCmd = &cobra.Command{
	Use:   "add <whitelist|custom> <path>",
	Short: "Add a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		get, set, err := pathKind(args[0])
		if err != nil {
			return err
		}
		typ, err := pathType(cmd, args[1])
		if err != nil {
			return err
		}
		return withStore(func(s *config.Store) error {
			p, err := get(s)
			if err != nil {
				return err
			}
			target := &p.Files
			if typ == config.PathFolder {
				target = &p.Folders
			}
			if slices.Contains(*target, args[1]) {
				printWarning("%s is already in %s", args[1], args[0])
				return nil
			}
			*target = append(*target, args[1])
			if err := set(s, p); err != nil {
				return err
			}
			printSuccess("Added %s %s to %s", typ, args[1], args[0])
			return nil
		})
	},
}

var pathsRemoveCmd = &cobra.Command{
	Use:   "remove <whitelist|custom> <path>",
	Short: "Remove a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		get, set, err := pathKind(args[0])
		if err != nil {
			return err
		}
		return withStore(func(s *config.Store) error {
			p, err := get(s)
			if err != nil {
				return err
			}
			n := p.Len()
			p.Files = slices.DeleteFunc(p.Files, func(f string) bool { return f == args[1] })
			p.Folders = slices.DeleteFunc(p.Folders, func(f string) bool { return f == args[1] })
			if p.Len() == n {
				return fmt.Errorf("%s is not in %s", args[1], args[0])
			}
			if err := set(s, p); err != nil {
				return err
			}
			printSuccess("Removed %s from %s", args[1], args[0])
			return nil
		})
	},
}

func init() {
	pathsAddCmd.Flags().String("type", "", "file or folder (default: detect)")
	pathsCmd.AddCommand(pathsShowCmd)
	pathsCmd.AddCommand(pathsAddCmd)
	pathsCmd.AddCommand(pathsRemoveCmd)
}
