package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func makeSubmission(sessionID string, finished time.Duration) *api.Submission {
	return &api.Submission{
		FormID:     "feedback",
		SessionID:  sessionID,
		Outcome:    api.SessionStatusDone,
		Variables:  map[string]string{"name": "Sam"},
		Answers:    map[string]any{"enjoyed": "Yes", "rating": 4},
		Unanswered: []string{"comments"},
		Transcript: []api.TranscriptEntry{
			{Role: api.RoleAssistant, Content: "Did you enjoy it?", Stage: "question:enjoyed", Timestamp: base},
			{Role: api.RoleUser, Content: "yes", Stage: "question:enjoyed", Timestamp: base},
		},
		Attempts: map[string][]api.Attempt{
			"enjoyed": {{RawAnswer: "yes", Verdict: api.Verdict{Valid: true, Value: "Yes", Confidence: 1}, At: base}},
		},
		StartedAt:  base,
		FinishedAt: base.Add(finished),
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveSubmission(ctx, makeSubmission("sess_a", time.Minute)); err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	got, err := s.GetSubmission(ctx, "sess_a")
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if got.FormID != "feedback" || got.Answers["enjoyed"] != "Yes" {
		t.Errorf("got %+v", got)
	}
	if len(got.Transcript) != 2 {
		t.Errorf("len(Transcript) = %d, want 2", len(got.Transcript))
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	if _, err := s.GetSubmission(context.Background(), "sess_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateSave(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveSubmission(ctx, makeSubmission("sess_dup", 0))
	if err := s.SaveSubmission(ctx, makeSubmission("sess_dup", 0)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	s.SaveSubmission(ctx, makeSubmission("sess_a", 0))
	s.SaveSubmission(ctx, makeSubmission("sess_b", 0))
	s.SaveSubmission(ctx, makeSubmission("sess_c", 0))

	// Reading sess_a makes sess_b the least recently used.
	if _, err := s.GetSubmission(ctx, "sess_a"); err != nil {
		t.Fatal(err)
	}
	s.SaveSubmission(ctx, makeSubmission("sess_d", 0))

	if _, err := s.GetSubmission(ctx, "sess_b"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected sess_b to be evicted")
	}
	for _, id := range []string{"sess_a", "sess_c", "sess_d"} {
		if _, err := s.GetSubmission(ctx, id); err != nil {
			t.Errorf("expected %s to exist after eviction, got %v", id, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestLRUEviction_Unlimited(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		s.SaveSubmission(ctx, makeSubmission(fmt.Sprintf("sess_%03d", i), 0))
	}
	if s.Len() != 100 {
		t.Errorf("expected 100 entries, got %d", s.Len())
	}
}

func TestListSubmissions(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i, id := range []string{"sess_1", "sess_2", "sess_3", "sess_4"} {
		sub := makeSubmission(id, time.Duration(i)*time.Minute)
		if id == "sess_3" {
			sub.Outcome = api.SessionStatusAbandoned
		}
		if id == "sess_4" {
			sub.FormID = "intake"
		}
		s.SaveSubmission(ctx, sub)
	}

	tests := []struct {
		name    string
		opts    transport.ListOptions
		wantIDs []string
		hasMore bool
	}{
		{"default newest first", transport.ListOptions{}, []string{"sess_4", "sess_3", "sess_2", "sess_1"}, false},
		{"ascending", transport.ListOptions{Order: "asc"}, []string{"sess_1", "sess_2", "sess_3", "sess_4"}, false},
		{"limit", transport.ListOptions{Limit: 2}, []string{"sess_4", "sess_3"}, true},
		{"after cursor", transport.ListOptions{After: "sess_3", Limit: 1}, []string{"sess_2"}, true},
		{"unknown cursor", transport.ListOptions{After: "sess_x"}, nil, false},
		{"by form", transport.ListOptions{FormID: "intake"}, []string{"sess_4"}, false},
		{"by outcome", transport.ListOptions{Outcome: api.SessionStatusAbandoned}, []string{"sess_3"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListSubmissions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListSubmissions: %v", err)
			}
			if list.Object != "list" {
				t.Errorf("object = %q", list.Object)
			}
			if len(list.Data) != len(tt.wantIDs) {
				t.Fatalf("got %d submissions, want %d", len(list.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if list.Data[i].SessionID != id {
					t.Errorf("data[%d] = %s, want %s", i, list.Data[i].SessionID, id)
				}
			}
			if list.HasMore != tt.hasMore {
				t.Errorf("has_more = %v, want %v", list.HasMore, tt.hasMore)
			}
		})
	}
}
