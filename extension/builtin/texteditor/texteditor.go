// Package texteditor implements the built-in text_editor tool: view, write,
// str_replace, and undo_edit against the local filesystem. It is the
// representative built-in extension whose behavior the core preserves
// exactly as if it had crossed the MCP boundary, grounded on the teacher's
// options-pattern constructor style (executor.New(..., opts ...Option)).
//
// Every file the editor touches is tracked as a file:// resource, and a
// str:/// resource exposes the process's working directory, mirroring
// goose-mcp's developer router: active_resources is how a host discovers
// "what has this tool looked at" independent of the tool-call transcript,
// and read_resource_internal's scheme dispatch (file reads from disk, str
// returns the URI's own literal payload) is what Editor.ReadResource
// implements below.
package texteditor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/tools"
)

const (
	// MaxViewBytes is the largest file view accepts, inclusive.
	MaxViewBytes = 2 * 1024 * 1024
	// MaxViewChars is the largest character count view accepts, inclusive.
	MaxViewChars = 1 << 20
)

// Editor serves the text_editor tool's four commands against the local
// filesystem, keeping an in-memory undo stack per path and an active
// resource entry per file it has viewed, written, or edited.
type Editor struct {
	mu        sync.Mutex
	history   map[string][]string       // path -> stack of prior file contents
	resources map[string]tools.Resource // uri -> tracked resource
}

// Option configures an Editor at construction.
type Option func(*Editor)

// New constructs an Editor with an empty undo history. The process's
// working directory is registered as a str:/// resource up front, the way
// goose-mcp's developer router always surfaces a "cwd" resource.
func New(opts ...Option) *Editor {
	e := &Editor{
		history:   make(map[string][]string),
		resources: make(map[string]tools.Resource),
	}
	if cwd, err := os.Getwd(); err == nil {
		uri := "str:///" + cwd
		e.resources[uri] = tools.Resource{URI: uri, MimeType: tools.ResourceText, Name: "cwd", Active: true, Timestamp: time.Now()}
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Toolset describes the text_editor tool for registration with the
// extension manager.
func Toolset() []tools.Tool {
	return []tools.Tool{{
		Name:        "text_editor",
		Description: "View, write, and edit text files on the local filesystem.",
	}}
}

type request struct {
	Command  string `json:"command"`
	Path     string `json:"path"`
	FileText string `json:"file_text,omitempty"`
	OldStr   string `json:"old_str,omitempty"`
	NewStr   string `json:"new_str,omitempty"`
}

// Handle implements extension.BuiltinHandler for the "text_editor" local
// tool name.
func (e *Editor) Handle(ctx context.Context, local string, args []byte) ([]tools.Content, error) {
	if local != "text_editor" {
		return nil, &agenterr.ToolNotFound{Name: local}
	}
	var req request
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("text_editor: %v", err)}
	}
	switch req.Command {
	case "view":
		return e.view(req.Path)
	case "write":
		return e.write(req.Path, req.FileText)
	case "str_replace":
		return e.strReplace(req.Path, req.OldStr, req.NewStr)
	case "undo_edit":
		return e.undoEdit(req.Path)
	default:
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("text_editor: unknown command %q", req.Command)}
	}
}

func (e *Editor) view(path string) ([]tools.Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("stat %s", path), Cause: err}
	}
	if info.Size() > MaxViewBytes {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("%s is %d bytes, exceeds the %d byte view limit", path, info.Size(), MaxViewBytes)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("read %s", path), Cause: err}
	}
	if n := len([]rune(string(data))); n > MaxViewChars {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("%s has %d characters, exceeds the %d character view limit", path, n, MaxViewChars)}
	}
	e.trackResource(path)
	return []tools.Content{tools.TextContent(string(data))}, nil
}

func (e *Editor) write(path, text string) ([]tools.Content, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prior, err := os.ReadFile(path); err == nil {
		e.history[path] = append(e.history[path], string(prior))
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("write %s", path), Cause: err}
	}
	e.trackResourceLocked(path)
	return []tools.Content{tools.TextContent(fmt.Sprintf("wrote %d bytes to %s", len(text), path))}, nil
}

func (e *Editor) strReplace(path, oldStr, newStr string) ([]tools.Content, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("read %s", path), Cause: err}
	}
	content := string(data)
	count := strings.Count(content, oldStr)
	if count == 0 {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("old_str not found in %s", path)}
	}
	if count > 1 {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("old_str matches %d times in %s, must match exactly once", count, path)}
	}

	replaced := strings.Replace(content, oldStr, newStr, 1)
	e.history[path] = append(e.history[path], content)
	if err := os.WriteFile(path, []byte(replaced), 0o644); err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("write %s", path), Cause: err}
	}
	e.trackResourceLocked(path)
	return []tools.Content{tools.TextContent(fmt.Sprintf("replaced 1 occurrence in %s", path))}, nil
}

// fileURI converts path to an absolute file:// URI, falling back to the
// path as given if it cannot be made absolute.
func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

func (e *Editor) trackResource(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trackResourceLocked(path)
}

func (e *Editor) trackResourceLocked(path string) {
	uri := fileURI(path)
	e.resources[uri] = tools.Resource{URI: uri, MimeType: tools.ResourceText, Name: path, Active: true, Timestamp: time.Now()}
}

// Resources implements extension.ResourceProvider.
func (e *Editor) Resources() []tools.Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]tools.Resource, 0, len(e.resources))
	for _, r := range e.resources {
		out = append(out, r)
	}
	return out
}

// ReadResource implements extension.ResourceProvider, decoding uri per its
// scheme: file:// resources are re-read from disk, str:/// resources (such
// as the cwd resource registered at construction) carry their content
// directly in the URI itself.
func (e *Editor) ReadResource(_ context.Context, uri string) ([]tools.Content, error) {
	e.mu.Lock()
	_, tracked := e.resources[uri]
	e.mu.Unlock()
	if !tracked {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("resource %q is not active; view or write it first", uri)}
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("invalid resource uri %q: %v", uri, err)}
	}

	switch parsed.Scheme {
	case "file":
		data, err := os.ReadFile(filepath.FromSlash(parsed.Path))
		if err != nil {
			return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("read %s", parsed.Path), Cause: err}
		}
		return []tools.Content{tools.TextContent(string(data))}, nil
	case "str":
		return []tools.Content{tools.TextContent(strings.TrimPrefix(parsed.Path, "/"))}, nil
	default:
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("unsupported resource uri scheme %q", parsed.Scheme)}
	}
}

func (e *Editor) undoEdit(path string) ([]tools.Content, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stack := e.history[path]
	if len(stack) == 0 {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("no edit history for %s", path)}
	}
	prior := stack[len(stack)-1]
	e.history[path] = stack[:len(stack)-1]
	if err := os.WriteFile(path, []byte(prior), 0o644); err != nil {
		return nil, &agenterr.ExecutionError{Message: fmt.Sprintf("write %s", path), Cause: err}
	}
	return []tools.Content{tools.TextContent(fmt.Sprintf("reverted %s to its prior contents", path))}, nil
}
