package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AccountID    *uint           `gorm:"index:idx_audit_account_id" json:"account_id,omitempty"`
	Account      *Account        `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:SET NULL" json:"-"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

const (
	AuditActionSignupInitiated   = "signup_initiated"
	AuditActionSignupCompleted   = "signup_completed"
	AuditActionSignupDuplicate   = "signup_duplicate"
	AuditActionOTPGenerated      = "otp_generated"
	AuditActionOTPResent         = "otp_resent"
	AuditActionOTPFailed         = "otp_failed"
	AuditActionOTPDeliveryFailed = "otp_delivery_failed"
	AuditActionLoginSuccess      = "login_success"
	AuditActionLoginFailed       = "login_failed"
	AuditActionProfileCreated    = "profile_created"
	AuditActionProfileUpdated    = "profile_updated"
	AuditActionAccountDeleted    = "account_deleted"
	AuditActionAccountBlocked    = "account_blocked"
	AuditActionAccountUnblocked  = "account_unblocked"
	AuditActionChatOpened        = "chat_opened"
	AuditActionChatAccepted      = "chat_accepted"
	AuditActionChatRejected      = "chat_rejected"
	AuditActionForbiddenAttempt  = "forbidden_attempt"
	AuditActionReviewSubmitted   = "review_submitted"
	AuditActionReviewsExported   = "reviews_exported"
	AuditActionProductCreated    = "product_created"

	AuditActionPasswordResetRequested = "password_reset_requested"
	AuditActionPasswordResetCompleted = "password_reset_completed"
	AuditActionPasswordResetFailed    = "password_reset_failed"
)

type AuditLogFilter struct {
	ID            *uint
	AccountID     *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsSecurityEvent marks entries worth surfacing to moderators.
func (a *AuditLog) IsSecurityEvent() bool {
	switch a.Action {
	case AuditActionLoginFailed, AuditActionOTPFailed, AuditActionForbiddenAttempt, AuditActionPasswordResetFailed,
		AuditActionAccountBlocked, AuditActionAccountDeleted:
		return true
	}
	return false
}
