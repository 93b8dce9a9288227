package domain

import "time"

// Critique is one ledger entry: the generated text for an activity and its
// upload status. At most one entry exists per activity id; the uploader may
// flip Uploaded/UploadedAt but never touches Text.
type Critique struct {
	ActivityID  int64      `json:"activity_id"`
	Text        string     `json:"critique"`
	GeneratedAt time.Time  `json:"generated_at"`
	Uploaded    bool       `json:"uploaded"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
}
