// Package integration runs end-to-end tests for the formchat API.
//
// Tests run against a real formchat HTTP server whose LLM judge talks to a
// scripted Chat Completions backend. Submissions land in a SQLite file in
// a temporary directory. Everything is started in-process.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/engine"
	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/judge"
	"github.com/rhuss/formchat/pkg/provider/openaicompat"
	"github.com/rhuss/formchat/pkg/session"
	"github.com/rhuss/formchat/pkg/storage/sqlite"
	transporthttp "github.com/rhuss/formchat/pkg/transport/http"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the formchat server and the scripted judge backend.
type TestEnvironment struct {
	FormchatServer *httptest.Server
	JudgeBackend   *httptest.Server
	Store          *sqlite.Store

	dir string
}

func TestMain(m *testing.M) {
	env, err := setupTestEnvironment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	testEnv = env
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

const onboardingYAML = `id: onboarding
title: Team onboarding
opening: "Welcome to {company}! A few quick questions."
closing: "Thanks, all set.\n{summary}"
variables: [company]
max_attempts: 2
questions:
  - id: name
    prompt: "What should we call you?"
    type: text
    required: true
  - id: team
    prompt: "Which team are you joining?"
    type: dropdown
    options: [Platform, Data, Mobile]
    required: true
  - id: start
    prompt: "When is your first day?"
    type: date
`

func setupTestEnvironment() (*TestEnvironment, error) {
	dir, err := os.MkdirTemp("", "formchat-integration-")
	if err != nil {
		return nil, err
	}

	def, err := form.Load(strings.NewReader(onboardingYAML), 3)
	if err != nil {
		return nil, fmt.Errorf("loading form: %w", err)
	}
	catalog, err := form.NewCatalog(def)
	if err != nil {
		return nil, err
	}

	backend := httptest.NewServer(newJudgeBackend())

	client, err := openaicompat.New(openaicompat.Config{Name: "vllm", BaseURL: backend.URL})
	if err != nil {
		return nil, fmt.Errorf("creating judge client: %w", err)
	}
	j := judge.NewLLM(client, "mock-judge", judge.WithMaxRetries(0), judge.WithMinConfidence(0.5))

	store, err := sqlite.New(context.Background(), filepath.Join(dir, "submissions.db"))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	eng, err := engine.New(catalog, j, session.NewStore(), store, engine.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	srv := transporthttp.NewServer(
		transporthttp.Backend{Turns: eng, Sessions: eng, Forms: eng, Submissions: store},
		transporthttp.WithRoute("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := store.HealthCheck(r.Context()); err != nil {
				http.Error(w, "storage unavailable\n", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok\n"))
		})),
	)

	return &TestEnvironment{
		FormchatServer: httptest.NewServer(srv.Adapter().Handler()),
		JudgeBackend:   backend,
		Store:          store,
		dir:            dir,
	}, nil
}

// Teardown stops both servers and removes the database.
func (env *TestEnvironment) Teardown() {
	if env.FormchatServer != nil {
		env.FormchatServer.Close()
	}
	if env.JudgeBackend != nil {
		env.JudgeBackend.Close()
	}
	if env.Store != nil {
		env.Store.Close()
	}
	os.RemoveAll(env.dir)
}

// BaseURL returns the formchat server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.FormchatServer.URL
}

// --- HTTP helpers ---

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// startSession starts an onboarding session and returns its first turn.
func startSession(t *testing.T) api.Turn {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/v1/sessions", api.StartRequest{
		FormID:    "onboarding",
		Variables: map[string]string{"company": "Acme"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var turn api.Turn
	decodeJSON(t, resp, &turn)
	return turn
}

// reply sends one message and returns the resulting turn.
func reply(t *testing.T, sessionID, text string) api.Turn {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/v1/sessions/"+sessionID+"/messages", api.ReplyRequest{Text: text})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reply %q: status %d: %s", text, resp.StatusCode, readBody(t, resp))
	}
	var turn api.Turn
	decodeJSON(t, resp, &turn)
	return turn
}

// --- Scripted judge backend ---

// scriptedVerdicts maps a raw answer to the JSON the model returns for it.
// Answers not listed are judged invalid.
var scriptedVerdicts = map[string]string{
	"call me Grace":         `{"valid": true, "value": "Grace", "confidence": 0.97}`,
	"the data folks":        `{"valid": true, "value": "Data", "confidence": 0.9}`,
	"the week after next":   `{"valid": true, "value": "2026-11-02", "confidence": 0.8}`,
	"not sure, whichever":   `{"valid": false, "confidence": 0.2, "reason": "no_match"}`,
	"marketing":             `{"valid": true, "value": "Marketing", "confidence": 0.9}`,
	"mumble":                `{"valid": true, "value": "Mumble", "confidence": 0.1}`,
	"the model is confused": `I think they meant something else.`,
}

func newJudgeBackend() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
			return
		}

		user := req.Messages[len(req.Messages)-1].Content
		_, answer, _ := strings.Cut(user, "Answer: ")
		content, ok := scriptedVerdicts[strings.TrimSpace(answer)]
		if !ok {
			content = `{"valid": false, "confidence": 0.9, "reason": "no_match"}`
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-integration",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	})
	return mux
}
