package draft

import (
	"encoding/json"
	"time"

	"response-platform/internal/assessment"
)

// Draft is a partially completed assessment form saved server-side so a
// field worker can resume on any device. Data is the raw form state; the
// server never validates it against the payload schema until submission.
type Draft struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	AutoSaved bool            `json:"autoSaved"`
}

// Key returns the per-user hash key for one assessment type, e.g.
// "FOOD-assessment-drafts:1d6f...".
func Key(t assessment.Type, userID string) string {
	return string(t) + "-assessment-drafts:" + userID
}
