package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, chunks <-chan StreamChunk) (text string, terminal StreamChunk) {
	t.Helper()
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Done || chunk.Err != nil {
			return b.String(), chunk
		}
		b.WriteString(chunk.Text)
	}
	t.Fatal("stream closed without a terminal chunk")
	return "", StreamChunk{}
}

func TestScriptClientStreamsAnswerInOrder(t *testing.T) {
	client := &ScriptClient{Answer: "one two three"}

	chunks, err := client.CompleteStream(context.Background(), Request{Model: "scripted"})
	require.NoError(t, err)

	text, terminal := collect(t, chunks)
	assert.Equal(t, "one two three", text)
	assert.True(t, terminal.Done)
	assert.NoError(t, terminal.Err)
	assert.Equal(t, int32(3), terminal.Usage.OutputTokens)
}

func TestScriptClientFailAfter(t *testing.T) {
	client := &ScriptClient{Answer: "a b c d e", FailAfter: 2}

	chunks, err := client.CompleteStream(context.Background(), Request{Model: "scripted"})
	require.NoError(t, err)

	text, terminal := collect(t, chunks)
	assert.Equal(t, "a b ", text)
	assert.False(t, terminal.Done)
	assert.Error(t, terminal.Err)
}

func TestScriptClientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &ScriptClient{Answer: "never delivered", TokenDelay: time.Millisecond}
	chunks, err := client.CompleteStream(ctx, Request{Model: "scripted"})
	require.NoError(t, err)

	_, terminal := collect(t, chunks)
	assert.ErrorIs(t, terminal.Err, context.Canceled)
}
