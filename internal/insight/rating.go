package insight

import (
	"context"
	"fmt"
	"strings"

	"spoky/internal/action"
	"spoky/internal/store"
)

// Report aggregates stored sentiment labels into a single rating on a
// -100..100 scale: (positive - negative) / total * 100.
type Report struct {
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
	Neutral  int     `json:"neutral"`
	Rating   float64 `json:"rating"`
}

// Rate tallies the sentiment details of stored voice commands for one
// user. Records without a sentiment label are skipped.
func Rate(ctx context.Context, gw store.Gateway, userID string, limit int) (Report, error) {
	recs, err := gw.Query(ctx, store.Filter{UserID: userID, Type: action.VoiceCommand}, limit)
	if err != nil {
		return Report{}, fmt.Errorf("query voice commands: %w", err)
	}

	var pos, neg, neu int
	for _, rec := range recs {
		label, _ := rec.Details["sentiment"].(string)
		switch Label(strings.ToUpper(label)) {
		case Positive:
			pos++
		case Negative:
			neg++
		case Neutral:
			neu++
		}
	}
	return buildReport(pos, neg, neu), nil
}

func buildReport(pos, neg, neu int) Report {
	r := Report{Positive: pos, Negative: neg, Neutral: neu}
	total := pos + neg + neu
	if total > 0 {
		r.Rating = float64(pos-neg) / float64(total) * 100
	}
	return r
}
