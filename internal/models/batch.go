package models

import "time"

// ReviewStatus is the aggregate review state of a batch
type ReviewStatus string

const (
	ReviewPending           ReviewStatus = "pending"
	ReviewPartiallyReviewed ReviewStatus = "partially_reviewed"
	ReviewConfirmed         ReviewStatus = "confirmed"
	ReviewCommitted         ReviewStatus = "committed"
)

// Batch groups records submitted together for joint review and commit
type Batch struct {
	ID          string `gorm:"column:batch_id;primaryKey;type:uuid" json:"batchId"`
	SubmittedBy string `gorm:"column:submitted_by;not null" json:"submittedBy"`
	// Channel of the submission that opened the batch. Informational only;
	// mixed-channel batches are allowed for form/scan entry.
	Channel      Channel      `gorm:"column:channel" json:"channel"`
	RecordCount  int          `gorm:"column:record_count" json:"recordCount"`
	ReviewStatus ReviewStatus `gorm:"column:review_status;not null;index" json:"reviewStatus"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Batch) TableName() string {
	return "batches"
}

// BatchReport aggregates per-status counts so an operator sees the complete
// outcome of a stage in one place
type BatchReport struct {
	BatchID      string `json:"batchId"`
	Total        int    `json:"total"`
	Staged       int    `json:"staged"`
	Previewed    int    `json:"previewed"`
	Rejected     int    `json:"rejected"`
	Committed    int    `json:"committed"`
	CommitFailed int    `json:"commitFailed"`
}

// DeriveReviewStatus computes the batch review state from its records.
// A batch is confirmed only when every record has left staged; it is
// committed only when nothing remains in previewed either.
func DeriveReviewStatus(records []VoucherRecord) ReviewStatus {
	if len(records) == 0 {
		return ReviewPending
	}
	staged, previewed, reviewed := 0, 0, 0
	for _, rec := range records {
		switch rec.Status {
		case StatusStaged:
			staged++
		case StatusPreviewed:
			previewed++
			reviewed++
		case StatusRejected, StatusCommitted, StatusCommitFailed:
			reviewed++
		}
	}
	switch {
	case staged == len(records):
		return ReviewPending
	case staged > 0:
		return ReviewPartiallyReviewed
	case previewed > 0:
		return ReviewConfirmed
	default:
		return ReviewCommitted
	}
}
