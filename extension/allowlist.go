package extension

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// allowlistEnvVar names the environment variable that, when set,
	// triggers a re-download of the command allow-list before trusting the
	// cached file.
	allowlistEnvVar = "AGENTFORGE_MCP_ALLOWLIST_URL"
	allowlistPath   = ".config/agentforge/mcp_allowlist.yaml"
)

// commandAllowlist is the YAML document cached at
// ~/.config/agentforge/mcp_allowlist.yaml.
type commandAllowlist struct {
	Commands []string `yaml:"commands"`
}

// AllowlistChecker decides whether a stdio extension's command is
// authorized to run. The zero value, like a nil *AllowlistChecker, allows
// every command; LoadAllowlist builds one from the configured allow-list.
type AllowlistChecker struct {
	commands map[string]struct{} // nil means "allow all" (no allow-list configured)
}

// Allows reports whether cmd may be spawned. An empty/absent allow-list
// permits every command, matching the spec's "absence of both is treated
// as allow all".
func (c *AllowlistChecker) Allows(cmd string) bool {
	if c == nil || c.commands == nil {
		return true
	}
	_, ok := c.commands[cmd]
	return ok
}

// LoadAllowlist resolves the command allow-list: if AGENTFORGE_MCP_ALLOWLIST_URL
// is set, it re-downloads the file first, caching the result at
// ~/.config/agentforge/mcp_allowlist.yaml; a failed download falls back to
// the existing cached file. If neither a URL nor a cached file is
// available, every command is allowed.
func LoadAllowlist(ctx context.Context, httpClient *http.Client) (*AllowlistChecker, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &AllowlistChecker{}, nil
	}
	cachePath := filepath.Join(home, allowlistPath)

	if url := os.Getenv(allowlistEnvVar); url != "" {
		if data, err := downloadAllowlist(ctx, httpClient, url); err == nil {
			_ = os.MkdirAll(filepath.Dir(cachePath), 0o755)
			_ = os.WriteFile(cachePath, data, 0o644)
			return parseAllowlist(data)
		}
		// Download failed: fall through to the cached file.
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return &AllowlistChecker{}, nil
	}
	return parseAllowlist(data)
}

func downloadAllowlist(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download allow-list: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseAllowlist(data []byte) (*AllowlistChecker, error) {
	var doc commandAllowlist
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mcp allow-list: %w", err)
	}
	if len(doc.Commands) == 0 {
		return &AllowlistChecker{}, nil
	}
	set := make(map[string]struct{}, len(doc.Commands))
	for _, c := range doc.Commands {
		set[c] = struct{}{}
	}
	return &AllowlistChecker{commands: set}, nil
}
