// Package config loads the agent runtime's process-wide configuration
// snapshot from a YAML file, grounded on the same gopkg.in/yaml.v3 idiom
// extension.LoadAllowlist uses for its own cached YAML document. A snapshot
// is immutable once loaded; Reload swaps in a new one behind an
// atomic.Pointer so readers never observe a partially applied config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const defaultPath = ".config/agentforge/config.yaml"

// Snapshot is the read-mostly configuration loaded once at process start.
type Snapshot struct {
	// DefaultMode is the permission.Mode a new session starts in absent an
	// explicit override.
	DefaultMode string `yaml:"default_mode"`
	// ContextLimit is the provider's advertised context window in tokens,
	// used by tokenbudget.Target.
	ContextLimit int `yaml:"context_limit"`
	// EstimateFactor scales ContextLimit down to the token budgeter's
	// target; zero selects tokenbudget.DefaultEstimateFactor.
	EstimateFactor float64 `yaml:"estimate_factor"`
	// Model selects the tokenizer tokenbudget uses to estimate costs.
	Model string `yaml:"model"`
	// AutoSummarize enables automatic history summarization on
	// ContextLengthExceeded.
	AutoSummarize bool `yaml:"auto_summarize"`
	// MCPAllowlistURL records the command allow-list source URL. It is
	// only stored here: extension.LoadAllowlist reads the
	// AGENTFORGE_MCP_ALLOWLIST_URL environment variable, not this field.
	MCPAllowlistURL string `yaml:"mcp_allowlist_url"`
}

// Store holds the current Snapshot behind an atomic.Pointer so Current is
// lock-free and Reload never exposes a half-written snapshot to a
// concurrent reader.
type Store struct {
	path string
	cur  atomic.Pointer[Snapshot]
}

// Load reads path (or, if empty, ~/.config/agentforge/config.yaml) into a
// new Store. A missing file yields an empty Snapshot rather than an error,
// since every field has a usable zero value or an explicit caller-side
// default (tokenbudget.DefaultEstimateFactor, permission.ModeApprove).
func Load(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve home directory: %w", err)
		}
		path = filepath.Join(home, defaultPath)
	}
	s := &Store{path: path}
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	s.cur.Store(snap)
	return s, nil
}

// Current returns the active Snapshot. The returned pointer is never
// mutated in place; Reload always swaps in a new one.
func (s *Store) Current() *Snapshot {
	return s.cur.Load()
}

// Reload re-reads the configured path and swaps it in atomically. A
// malformed or unreadable file leaves the previous snapshot in place and
// returns the error so the caller can log it; a missing file swaps in an
// empty Snapshot, as Load does.
func (s *Store) Reload() error {
	snap, err := readSnapshot(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(snap)
	return nil
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &snap, nil
}
