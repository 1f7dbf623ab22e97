package insight

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"spoky/internal/action"
	"spoky/internal/store"
)

func TestBuildReport(t *testing.T) {
	tests := []struct {
		name          string
		pos, neg, neu int
		want          float64
	}{
		{"all positive", 4, 0, 0, 100},
		{"all negative", 0, 4, 0, -100},
		{"mixed", 3, 1, 1, 40},
		{"balanced", 2, 2, 2, 0},
		{"empty", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildReport(tt.pos, tt.neg, tt.neu)
			if math.Abs(r.Rating-tt.want) > 1e-9 {
				t.Errorf("rating = %v, want %v", r.Rating, tt.want)
			}
			if r.Positive != tt.pos || r.Negative != tt.neg || r.Neutral != tt.neu {
				t.Errorf("counts = %+v", r)
			}
		})
	}
}

func TestRateFromStore(t *testing.T) {
	gw, err := store.Open("file", filepath.Join(t.TempDir(), "actions.jsonl"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer gw.Close()

	ctx := context.Background()
	write := func(userID, sentiment string) {
		t.Helper()
		rec := action.NewRecord("sess", userID, 0, action.VoiceCommand,
			map[string]any{"sentiment": sentiment}, action.StatusSuccess)
		if _, err := gw.Write(ctx, rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("alice", "POSITIVE")
	write("alice", "positive") // case-insensitive
	write("alice", "NEGATIVE")
	write("alice", "NEUTRAL")
	write("bob", "NEGATIVE") // different user, excluded

	r, err := Rate(ctx, gw, "alice", 0)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if r.Positive != 2 || r.Negative != 1 || r.Neutral != 1 {
		t.Errorf("counts = %+v", r)
	}
	if math.Abs(r.Rating-25) > 1e-9 {
		t.Errorf("rating = %v, want 25", r.Rating)
	}
}

func TestRateSkipsUnlabeled(t *testing.T) {
	gw, err := store.Open("file", filepath.Join(t.TempDir(), "actions.jsonl"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer gw.Close()

	ctx := context.Background()
	rec := action.NewRecord("sess", "alice", 0, action.VoiceCommand,
		map[string]any{"recognized_text": "status"}, action.StatusSuccess)
	if _, err := gw.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := Rate(ctx, gw, "alice", 0)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if r.Positive+r.Negative+r.Neutral != 0 || r.Rating != 0 {
		t.Errorf("report = %+v, want empty", r)
	}
}
