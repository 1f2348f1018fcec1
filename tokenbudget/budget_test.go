package tokenbudget

import (
	"testing"
	"time"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
	"github.com/stretchr/testify/require"
)

func resourceEntry(name string, priority float64, ts time.Time, tokens int) ResourceEntry {
	p := priority
	return ResourceEntry{
		Extension: "ext",
		Resource:  tools.Resource{URI: name, Name: name, Priority: &p, Timestamp: ts},
		Content:   name,
		Tokens:    tokens,
	}
}

// TestScenarioDTightTargetDropsOnlyLowPriority implements the spec's
// Scenario D with a target of 35: baseline 18 plus two 10-token resources
// at priorities 0.8 ("high_priority") and 0.1 ("low_priority") totals 38,
// so only the low-priority resource should be dropped.
func TestScenarioDTightTargetDropsOnlyLowPriority(t *testing.T) {
	now := time.Unix(1000, 0)
	high := resourceEntry("high_priority", 0.8, now, 10)
	low := resourceEntry("low_priority", 0.1, now.Add(-time.Minute), 10)

	survivors, dropped := Trim(18, []ResourceEntry{high, low}, 35)
	require.Len(t, survivors, 1)
	require.Len(t, dropped, 1)
	require.Equal(t, "high_priority", survivors[0].Resource.Name)
	require.Equal(t, "low_priority", dropped[0].Resource.Name)

	status := RenderStatus(survivors)
	require.Contains(t, status, "high_priority")
	require.NotContains(t, status, "low_priority")
}

// TestScenarioDLooseTargetKeepsBoth implements the same scenario with
// target=100: both resources fit and neither is dropped.
func TestScenarioDLooseTargetKeepsBoth(t *testing.T) {
	now := time.Unix(1000, 0)
	high := resourceEntry("high_priority", 0.8, now, 10)
	low := resourceEntry("low_priority", 0.1, now.Add(-time.Minute), 10)

	survivors, dropped := Trim(18, []ResourceEntry{high, low}, 100)
	require.Len(t, survivors, 2)
	require.Empty(t, dropped)

	status := RenderStatus(survivors)
	require.Contains(t, status, "high_priority")
	require.Contains(t, status, "low_priority")
}

func TestTrimBreaksTiesByTimestampWithinEpsilon(t *testing.T) {
	now := time.Unix(1000, 0)
	older := resourceEntry("older", 0.500, now.Add(-time.Hour), 5)
	newer := resourceEntry("newer", 0.5004, now, 5) // within priorityEpsilon of 0.5

	survivors, dropped := Trim(0, []ResourceEntry{older, newer}, 5)
	require.Len(t, survivors, 1)
	require.Equal(t, "newer", survivors[0].Resource.Name)
	require.Len(t, dropped, 1)
	require.Equal(t, "older", dropped[0].Resource.Name)
}

func TestTrimPopsAllWhenTargetUnreachable(t *testing.T) {
	now := time.Unix(1000, 0)
	a := resourceEntry("a", 0.9, now, 50)
	b := resourceEntry("b", 0.9, now, 50)

	survivors, dropped := Trim(1000, []ResourceEntry{a, b}, 10)
	require.Empty(t, survivors)
	require.Len(t, dropped, 2)
}

func TestStatusPairIsTaggedAndStrippable(t *testing.T) {
	now := time.Unix(1000, 0)
	assistantMsg, userMsg := StatusPair(now, []ResourceEntry{resourceEntry("high_priority", 0.8, now, 10)})

	require.True(t, IsStatusPair(assistantMsg, userMsg))

	history := []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, now, "hello"),
		assistantMsg,
		userMsg,
	}
	stripped := StripTrailingStatusPair(history)
	require.Len(t, stripped, 1)
}

func TestStripTrailingStatusPairLeavesOrdinaryHistoryAlone(t *testing.T) {
	now := time.Unix(1000, 0)
	history := []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, now, "hello"),
		agentmodel.Text(agentmodel.RoleAssistant, now, "hi"),
	}
	stripped := StripTrailingStatusPair(history)
	require.Equal(t, history, stripped)
}

func TestTargetAppliesDefaultEstimateFactor(t *testing.T) {
	require.Equal(t, int(100000*DefaultEstimateFactor), Target(100000, 0))
	require.Equal(t, 50000, Target(100000, 0.5))
}
