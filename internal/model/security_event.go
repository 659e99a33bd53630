package model

import (
	"time"
)

// SecurityEvent is one row of the append-only audit trail. AccountID holds the
// raw login id when the account could not be resolved. BeforeValue and
// AfterValue are JSON documents.
type SecurityEvent struct {
	ID           string            `db:"id" json:"id"`
	AccountID    string            `db:"account_id" json:"accountId"`
	EventType    SecurityEventType `db:"event_type" json:"eventType"`
	Result       EventResult       `db:"result" json:"result"`
	Detail       *string           `db:"detail" json:"detail,omitempty"`
	ErrorMessage *string           `db:"error_message" json:"errorMessage,omitempty"`
	BeforeValue  *string           `db:"before_value" json:"beforeValue,omitempty"`
	AfterValue   *string           `db:"after_value" json:"afterValue,omitempty"`
	IPAddress    *string           `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent    *string           `db:"user_agent" json:"userAgent,omitempty"`
	SessionID    *string           `db:"session_id" json:"sessionId,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
}
