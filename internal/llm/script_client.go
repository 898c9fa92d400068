package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ScriptClient is a deterministic StreamingClient used in development mode
// and tests. It streams a canned answer word by word.
type ScriptClient struct {
	// Answer is the full text to stream. When empty a generic reply is used.
	Answer string
	// TokenDelay inserts a pause before each token, approximating provider
	// pacing. Zero means no delay.
	TokenDelay time.Duration
	// FailAfter, when > 0, emits that many tokens and then a provider error.
	FailAfter int
	// Err is the error emitted when FailAfter triggers.
	Err error
}

const defaultScriptAnswer = "Every family works through this at some point. Start with one small consistent change, give it a full week, and adjust from there. You know your child best."

// CompleteStream streams the scripted answer. Cancelling ctx stops the
// stream mid-way without a terminal Done chunk, like a real provider abort.
func (s *ScriptClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	answer := s.Answer
	if answer == "" {
		answer = defaultScriptAnswer
	}
	words := strings.Fields(answer)

	chunks := make(chan StreamChunk, len(words)+1)

	go func() {
		defer close(chunks)

		var emitted int
		for i, word := range words {
			if s.TokenDelay > 0 {
				select {
				case <-time.After(s.TokenDelay):
				case <-ctx.Done():
					chunks <- StreamChunk{Err: ctx.Err()}
					return
				}
			} else if ctx.Err() != nil {
				chunks <- StreamChunk{Err: ctx.Err()}
				return
			}

			if s.FailAfter > 0 && emitted >= s.FailAfter {
				err := s.Err
				if err == nil {
					err = errors.New("llm: scripted provider failure")
				}
				chunks <- StreamChunk{Err: err}
				return
			}

			token := word
			if i < len(words)-1 {
				token += " "
			}

			select {
			case chunks <- StreamChunk{Text: token}:
				emitted++
			case <-ctx.Done():
				chunks <- StreamChunk{Err: ctx.Err()}
				return
			}
		}

		chunks <- StreamChunk{Done: true, Usage: TokenUsage{
			InputTokens:  int32(len(req.Messages) * 8),
			OutputTokens: int32(len(words)),
			TotalTokens:  int32(len(req.Messages)*8 + len(words)),
		}}
	}()

	return chunks, nil
}
