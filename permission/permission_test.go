package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/agentforge/core/tools"
	"github.com/stretchr/testify/require"
)

func shellTool() tools.Tool {
	return tools.Tool{Name: tools.Qualify("dev", "shell")}
}

func readOnlyTool() tools.Tool {
	return tools.Tool{Name: tools.Qualify("dev", "ls"), Annotations: tools.Annotations{ReadOnly: true}}
}

func platformTool(local string) tools.Tool {
	return tools.Tool{Name: tools.Qualify(tools.PlatformExtension, local)}
}

func TestPlatformToolsAlwaysApprovedExceptEnableExtension(t *testing.T) {
	e := New(ModeApprove, nil, nil)

	level, err := e.Classify(context.Background(), platformTool("read_resource"), nil)
	require.NoError(t, err)
	require.Equal(t, Approved, level)

	level, err = e.Classify(context.Background(), platformTool("enable_extension"), nil)
	require.NoError(t, err)
	require.Equal(t, NeedsApproval, level)
}

func TestStoredAlwaysAllowShortCircuitsToApproved(t *testing.T) {
	store := NewInmemStore()
	tool := shellTool()
	require.NoError(t, store.Set(context.Background(), tool.Name, DecisionAlwaysAllow))

	e := New(ModeChat, store, nil)
	level, err := e.Classify(context.Background(), tool, nil)
	require.NoError(t, err)
	require.Equal(t, Approved, level)
}

func TestStoredNeverAllowShortCircuitsToDenied(t *testing.T) {
	store := NewInmemStore()
	tool := shellTool()
	require.NoError(t, store.Set(context.Background(), tool.Name, DecisionNeverAllow))

	e := New(ModeAuto, store, nil)
	level, err := e.Classify(context.Background(), tool, nil)
	require.NoError(t, err)
	require.Equal(t, Denied, level)
}

// TestReadOnlyApprovedRegardlessOfMode covers the invariant that a
// read_only annotation approves the call for every mode but an explicit
// NeverAllow, which a stored decision would already have caught above.
func TestReadOnlyApprovedRegardlessOfMode(t *testing.T) {
	for _, mode := range []Mode{ModeAuto, ModeChat, ModeApprove, ModeSmartApprove} {
		e := New(mode, nil, nil)
		level, err := e.Classify(context.Background(), readOnlyTool(), nil)
		require.NoError(t, err)
		require.Equalf(t, Approved, level, "mode %s", mode)
	}
}

func TestAutoModeApprovesEverything(t *testing.T) {
	e := New(ModeAuto, nil, nil)
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, Approved, level)
}

func TestChatModeDenies(t *testing.T) {
	e := New(ModeChat, nil, nil)
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, Denied, level)
}

// TestScenarioEApproveModeNeedsApproval implements spec's Scenario E: mode
// approve, tool shell lacks read-only annotation, no stored permission ->
// NeedsApproval.
func TestScenarioEApproveModeNeedsApproval(t *testing.T) {
	e := New(ModeApprove, NewInmemStore(), nil)
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, NeedsApproval, level)
}

type fakeClassifier struct {
	approved bool
	err      error
}

func (f fakeClassifier) Classify(context.Context, tools.Tool, []byte) (bool, error) {
	return f.approved, f.err
}

func TestSmartApproveConsultsClassifier(t *testing.T) {
	e := New(ModeSmartApprove, nil, fakeClassifier{approved: true})
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, Approved, level)

	e = New(ModeSmartApprove, nil, fakeClassifier{approved: false})
	level, err = e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, NeedsApproval, level)
}

func TestSmartApproveClassifierFailureDefaultsToNeedsApprovalWithError(t *testing.T) {
	wantErr := errors.New("classifier unavailable")
	e := New(ModeSmartApprove, nil, fakeClassifier{err: wantErr})
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, NeedsApproval, level)
}

func TestSmartApproveWithNoClassifierConfiguredNeedsApproval(t *testing.T) {
	e := New(ModeSmartApprove, nil, nil)
	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, NeedsApproval, level)
}

func TestRecordDecisionPersistsThroughStore(t *testing.T) {
	store := NewInmemStore()
	e := New(ModeApprove, store, nil)
	require.NoError(t, e.RecordDecision(context.Background(), shellTool().Name, DecisionAlwaysAllow))

	level, err := e.Classify(context.Background(), shellTool(), nil)
	require.NoError(t, err)
	require.Equal(t, Approved, level)
}
