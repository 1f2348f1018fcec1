package tokenbudget

import (
	"strings"
	"testing"
	"time"

	"github.com/agentforge/core/agentmodel"
	"github.com/stretchr/testify/require"
)

func TestByteHeuristicIsMonotoneInBytes(t *testing.T) {
	short := byteHeuristic("abcd")
	long := byteHeuristic(strings.Repeat("abcd", 100))
	require.Less(t, short, long)
}

func TestTiktokenCounterFallsBackForUnknownModel(t *testing.T) {
	c := NewTiktokenCounter("some-nonexistent-model-xyz")
	require.NotZero(t, c.CountText("hello world, this is a test"))
}

func TestTiktokenCounterMonotoneInBytes(t *testing.T) {
	c := NewTiktokenCounter("gpt-4")
	short := c.CountText("hello")
	long := c.CountText(strings.Repeat("hello ", 50))
	require.Greater(t, long, short)
}

func TestCountMessageSumsParts(t *testing.T) {
	c := NewTiktokenCounter("gpt-4")
	now := time.Unix(1000, 0)
	overhead := c.CountMessage(agentmodel.NewUserMessage(now))
	msg := agentmodel.NewUserMessage(now, agentmodel.TextPart{Text: "hello"}, agentmodel.TextPart{Text: "world"})
	require.Equal(t, overhead+c.CountText("hello")+c.CountText("world"), c.CountMessage(msg))
}
