// Command mock-judge runs a deterministic OpenAI-compatible Chat
// Completions server for end-to-end tests of the LLM judge. It reads the
// judge prompt, rebuilds the question type from it, and answers with the
// verdict the rules judge would give.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/judge"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock judge starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock judge failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock judge shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type verdict struct {
	Valid      bool    `json:"valid"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	v, err := decide(system, user)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"message":%q,"type":"invalid_request_error"}}`, err.Error()), http.StatusBadRequest)
		return
	}
	content, _ := json.Marshal(v)

	model := req.Model
	if model == "" {
		model = "mock-judge"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:     "chatcmpl-mock-judge",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: string(content)},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: len(system+user) / 4, CompletionTokens: len(content) / 4, TotalTokens: (len(system+user) + len(content)) / 4},
	})
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": "mock-judge", "object": "model", "owned_by": "formchat"}},
	})
}

var ratingRange = regexp.MustCompile(`whole number from (-?\d+) to (-?\d+)`)

// decide rebuilds the question kind from the judge prompt and applies the
// rules judge's matching to the raw answer.
func decide(system, user string) (verdict, error) {
	fields := parseFields(user)
	raw, ok := fields["Answer"]
	if !ok {
		return verdict{}, fmt.Errorf("judge input has no Answer line")
	}

	kind, err := kindFromPrompt(fields["Expected format"], fields["Options"], system)
	if err != nil {
		return verdict{}, err
	}

	value, reason := judge.Match(kind, raw)
	if reason != "" {
		return verdict{Valid: false, Value: nil, Confidence: 0.9, Reason: reason}, nil
	}
	return verdict{Valid: true, Value: value, Confidence: 0.95, Reason: "matched"}, nil
}

// parseFields reads the "Key: value" lines of a judge input. The answer
// is the rest of the message and may span lines.
func parseFields(user string) map[string]string {
	fields := make(map[string]string)
	lines := strings.Split(user, "\n")
	for i, line := range lines {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if key == "Answer" {
			fields[key] = strings.Join(append([]string{value}, lines[i+1:]...), "\n")
			break
		}
		fields[key] = value
	}
	return fields
}

func kindFromPrompt(typeName, options, system string) (form.Kind, error) {
	switch typeName {
	case form.TypeText:
		return form.Text{}, nil
	case form.TypeMultipleChoice:
		return form.MultipleChoice{Options: strings.Split(options, " | ")}, nil
	case form.TypeDropdown:
		return form.Dropdown{Options: strings.Split(options, " | ")}, nil
	case form.TypeYesNo:
		return form.YesNo{}, nil
	case form.TypeDate:
		return form.Date{}, nil
	case form.TypeRating:
		m := ratingRange.FindStringSubmatch(system)
		if m == nil {
			return nil, fmt.Errorf("rating bounds not found in instruction")
		}
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return form.Rating{Min: lo, Max: hi}, nil
	default:
		return nil, fmt.Errorf("unknown expected format %q", typeName)
	}
}
