package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
)

// NewMCPServer creates an MCP server exposing preferences and locale scans.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"purgekit",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("purgekit: cleaner preferences and unused localization files."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_option",
			mcp.WithDescription("Read one cleaner preference with its default and kind."),
			mcp.WithString("key", mcp.Description("Preference key (e.g. delete_confirmation)"), mcp.Required()),
		),
		mcpGetOption(deps),
	)

	s.AddTool(
		mcp.NewTool("set_option",
			mcp.WithDescription("Set a cleaner preference. Bool values accept true/false, yes/no, on/off, 1/0."),
			mcp.WithString("key", mcp.Description("Preference key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpSetOption(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_option",
			mcp.WithDescription("Flip a boolean cleaner preference."),
			mcp.WithString("key", mcp.Description("Boolean preference key"), mcp.Required()),
		),
		mcpToggleOption(deps),
	)

	s.AddTool(
		mcp.NewTool("list_languages",
			mcp.WithDescription("List known locales with their native names and whether each is preserved."),
			mcp.WithBoolean("kept_only", mcp.Description("Only return preserved locales")),
		),
		mcpListLanguages(deps),
	)

	s.AddTool(
		mcp.NewTool("scan_locales",
			mcp.WithDescription("Find localization files for languages that are not preserved. Nothing is deleted."),
			mcp.WithArray("keep", mcp.Description("Locales to keep; defaults to the preserved languages"), mcp.WithStringItems()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of paths to return (default 100)")),
		),
		mcpScanLocales(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"purgekit://options",
			"Preferences",
			mcp.WithResourceDescription("All cleaner preferences with effective values as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOptions(deps),
	)

	return s
}

func mcpGetOption(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		var info config.KeyInfo
		err = deps.Prefs.Do(func(s *config.Store) error {
			var err error
			info, err = s.Describe(key)
			return err
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(info)
	}
}

func mcpSetOption(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}
		err = deps.Prefs.Do(func(s *config.Store) error {
			if _, err := s.Describe(key); err != nil {
				return err
			}
			return s.SetString(config.SectionMain, key, value)
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to set option: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpToggleOption(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		var now bool
		err = deps.Prefs.Do(func(s *config.Store) error {
			if err := s.Toggle(key); err != nil {
				return err
			}
			var err error
			now, err = s.Bool(key)
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to toggle option: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s is now %t", key, now)), nil
	}
}

func mcpListLanguages(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keptOnly := req.GetBool("kept_only", false)
		var langs []Language
		deps.Prefs.Do(func(s *config.Store) error {
			langs = languages(s)
			return nil
		})
		if keptOnly {
			kept := langs[:0]
			for _, l := range langs {
				if l.Keep {
					kept = append(kept, l)
				}
			}
			langs = kept
		}
		return mcpJSON(langs)
	}
}

// mcpScanLocales runs a scan synchronously and returns the found paths. The
// run is recorded in the task history like any other.
func mcpScanLocales(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keep := req.GetStringSlice("keep", nil)
		limit := req.GetInt("limit", 100)
		if limit <= 0 {
			limit = 100
		}
		if len(keep) == 0 {
			deps.Prefs.Do(func(s *config.Store) error {
				keep = s.Languages()
				return nil
			})
		}

		ev, err := deps.Runner.Run(ctx, taskRequest(deps, keep))
		if errors.Is(err, locale.ErrEmptyKeepSet) {
			return mcpError("no languages are preserved; keep at least one locale"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("scan failed: %v", err)), nil
		}

		paths, err := deps.Tasks.TaskPaths(ev.TaskID)
		if err != nil {
			return mcpError(fmt.Sprintf("reading scan results: %v", err)), nil
		}
		type scanResult struct {
			TaskID string   `json:"task_id"`
			Found  int      `json:"found"`
			Bytes  int64    `json:"bytes"`
			Paths  []string `json:"paths"`
		}
		res := scanResult{TaskID: ev.TaskID, Found: ev.Found, Bytes: ev.Bytes, Paths: []string{}}
		for i, p := range paths {
			if i == limit {
				break
			}
			res.Paths = append(res.Paths, p.Path)
		}
		return mcpJSON(res)
	}
}

func mcpResourceOptions(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var infos []config.KeyInfo
		deps.Prefs.Do(func(s *config.Store) error {
			infos = s.ShowAll()
			return nil
		})
		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal options: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: strings.TrimSpace(msg)},
		},
		IsError: true,
	}
}
