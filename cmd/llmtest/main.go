package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/okenna/parentcare/internal/llm"
	"github.com/okenna/parentcare/pkg/logging"
)

// Streams one question through the configured provider so credentials and
// gateway settings can be checked without starting the API server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	question := "My 3 year old refuses to eat anything green. Any ideas?"
	if len(os.Args) > 1 {
		question = os.Args[1]
	}

	logger := logging.New("debug")

	var client llm.StreamingClient
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client = llm.NewOpenAIClient(key, os.Getenv("OPENAI_BASE_URL"), logger)
		fmt.Println("provider: openai-compatible")
	} else {
		client = &llm.ScriptClient{TokenDelay: 40 * time.Millisecond}
		fmt.Println("provider: scripted (no OPENAI_API_KEY set)")
	}

	model := os.Getenv("GENERATION_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	chunks, err := client.CompleteStream(ctx, llm.Request{
		Model:       model,
		System:      []string{"You are a concise, warm parenting assistant."},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: question}},
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		log.Fatalf("open stream: %v", err)
	}

	start := time.Now()
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			log.Fatalf("stream error: %v", chunk.Err)
		case chunk.Done:
			fmt.Printf("\n\ndone in %v (input=%d output=%d tokens)\n",
				time.Since(start).Round(time.Millisecond),
				chunk.Usage.InputTokens, chunk.Usage.OutputTokens)
		default:
			fmt.Print(chunk.Text)
		}
	}
}
