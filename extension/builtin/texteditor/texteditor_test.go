package texteditor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentforge/core/agenterr"
	"github.com/stretchr/testify/require"
)

func callJSON(t *testing.T, e *Editor, req any) ([]byte, error) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	content, err := e.Handle(context.Background(), "text_editor", data)
	if err != nil {
		return nil, err
	}
	return []byte(content[0].Text), nil
}

func TestViewExactlyAtByteLimitSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, MaxViewBytes), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	require.NoError(t, err)
}

func TestViewOneByteOverLimitFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, MaxViewBytes+1), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}

func TestViewExactlyAtCharLimitSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chars.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", MaxViewChars)), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	require.NoError(t, err)
}

func TestViewOneCharOverLimitFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chars.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", MaxViewChars+1)), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}

func TestStrReplaceSingleMatchSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "str_replace", Path: path, OldStr: "world", NewStr: "there"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello there", string(data))
}

func TestStrReplaceZeroMatchesFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "str_replace", Path: path, OldStr: "missing"})
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}

func TestStrReplaceMultipleMatchesFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("aa aa"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "str_replace", Path: path, OldStr: "aa"})
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}

func TestUndoEditPopsStack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "write", Path: path, FileText: "v2"})
	require.NoError(t, err)

	_, err = callJSON(t, e, request{Command: "undo_edit", Path: path})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}

func TestUndoEditWithNoHistoryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "undo_edit", Path: path})
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}

func TestNewRegistersCwdAsStrResource(t *testing.T) {
	e := New()
	cwd, err := os.Getwd()
	require.NoError(t, err)

	var found bool
	for _, r := range e.Resources() {
		if r.URI == "str:///"+cwd {
			found = true
		}
	}
	require.True(t, found, "expected cwd resource among %v", e.Resources())

	content, err := e.ReadResource(context.Background(), "str:///"+cwd)
	require.NoError(t, err)
	require.Equal(t, cwd, content[0].Text)
}

func TestViewTracksFileResourceReadableBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	require.NoError(t, err)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	uri := "file://" + filepath.ToSlash(abs)

	var found bool
	for _, r := range e.Resources() {
		if r.URI == uri {
			found = true
		}
	}
	require.True(t, found)

	content, err := e.ReadResource(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, "hello", content[0].Text)
}

func TestWriteTracksFileResourceReflectingLatestContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")

	e := New()
	_, err := callJSON(t, e, request{Command: "write", Path: path, FileText: "v1"})
	require.NoError(t, err)
	_, err = callJSON(t, e, request{Command: "write", Path: path, FileText: "v2"})
	require.NoError(t, err)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	uri := "file://" + filepath.ToSlash(abs)

	content, err := e.ReadResource(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, "v2", content[0].Text)
}

func TestReadResourceUntrackedURIFails(t *testing.T) {
	e := New()
	_, err := e.ReadResource(context.Background(), "file:///never/viewed.txt")
	require.Error(t, err)
}

func TestReadResourceUnsupportedSchemeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	e := New()
	_, err := callJSON(t, e, request{Command: "view", Path: path})
	require.NoError(t, err)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	e.resources["http://"+filepath.ToSlash(abs)] = e.resources["file://"+filepath.ToSlash(abs)]

	_, err = e.ReadResource(context.Background(), "http://"+filepath.ToSlash(abs))
	var invalid *agenterr.InvalidParameters
	require.ErrorAs(t, err, &invalid)
}
