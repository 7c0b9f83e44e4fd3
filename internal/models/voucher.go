package models

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Canonical field formats printed on physical vouchers. The serial number is
// fixed-length alphanumeric; the voucher number is the numeric top-up code.
var (
	SerialNumberPattern  = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)
	VoucherNumberPattern = regexp.MustCompile(`^[0-9]{6,20}$`)
)

// Channel identifies which input channel produced a record
type Channel string

const (
	ChannelCSV  Channel = "csv"
	ChannelForm Channel = "form"
	ChannelOCR  Channel = "ocr"
	ChannelAI   Channel = "ai"
)

// IsMachineRead reports whether the channel output is untrusted machine
// extraction (OCR/AI). Records from these channels always carry a confidence.
func (c Channel) IsMachineRead() bool {
	return c == ChannelOCR || c == ChannelAI
}

// Valid reports whether the channel tag is one of the known channels
func (c Channel) Valid() bool {
	switch c {
	case ChannelCSV, ChannelForm, ChannelOCR, ChannelAI:
		return true
	}
	return false
}

// Status is the lifecycle state of a voucher record
type Status string

const (
	StatusIngested     Status = "ingested"
	StatusNormalized   Status = "normalized"
	StatusValidated    Status = "validated"
	StatusRejected     Status = "rejected"
	StatusStaged       Status = "staged"
	StatusPreviewed    Status = "previewed"
	StatusCommitted    Status = "committed"
	StatusCommitFailed Status = "commit_failed"
)

// transitions encodes the per-record state machine. Forward-only along the
// pipeline, except commit_failed -> staged for operator retry.
var transitions = map[Status][]Status{
	StatusIngested:     {StatusNormalized},
	StatusNormalized:   {StatusValidated, StatusRejected},
	StatusValidated:    {StatusStaged},
	StatusStaged:       {StatusPreviewed, StatusRejected},
	StatusPreviewed:    {StatusCommitted, StatusCommitFailed},
	StatusCommitFailed: {StatusStaged},
	// rejected and committed are terminal
}

// CanTransition reports whether moving from s to target is a legal step
func (s Status) CanTransition(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Active reports whether the record still holds its serial number for
// uniqueness purposes. Physical vouchers are single-use, so everything that
// is not rejected counts as active.
func (s Status) Active() bool {
	return s != StatusRejected
}

// VoucherRecord is the canonical unit flowing through the input funnel.
// Serial number is the business key; uniqueness among active records is
// enforced by a partial unique index, not application locking.
type VoucherRecord struct {
	ID            uint            `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	SerialNumber  string          `gorm:"column:serial_number;not null;index:idx_active_serial,unique,where:status <> 'rejected'" json:"serialNumber"`
	VoucherNumber string          `gorm:"column:voucher_number;not null" json:"voucherNumber"`
	ProductCode   string          `gorm:"column:product_code;not null;index" json:"productCode"`
	Denomination  decimal.Decimal `gorm:"column:denomination;type:numeric(14,2)" json:"denomination"`
	ExpiryDate    *time.Time      `gorm:"column:expiry_date" json:"expiryDate,omitempty"`

	SourceChannel Channel  `gorm:"column:source_channel;not null" json:"sourceChannel"`
	Confidence    *float64 `gorm:"column:confidence" json:"confidence,omitempty"`

	Status          Status `gorm:"column:status;not null;index" json:"status"`
	RejectionReason string `gorm:"column:rejection_reason" json:"rejectionReason,omitempty"`

	BatchID    string         `gorm:"column:batch_id;type:uuid;not null;index" json:"batchId"`
	RawPayload datatypes.JSON `gorm:"column:raw_payload;type:jsonb" json:"rawPayload,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (VoucherRecord) TableName() string {
	return "voucher_records"
}
