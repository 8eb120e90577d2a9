// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// createAuditLog records an audit entry. Failures are logged and otherwise ignored
// so auditing never changes the outcome of a flow.
func createAuditLog(ctx context.Context, repo repository.AuditLogRepository, accountID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	if repo == nil {
		return
	}

	ipAddress := "127.0.0.1"
	userAgent := ""
	var extra json.RawMessage
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
		if len(metadata.Additional) > 0 {
			extra, _ = json.Marshal(metadata.Additional)
		}
	}

	audit := &models.AuditLog{
		AccountID:    accountID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
		Metadata:     extra,
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = &metadata.RequestID
	}

	if err := repo.Save(ctx, audit); err != nil {
		log.Printf("audit: failed to record %s: %v", action, err)
	}
}

// ToAccountDTO converts an account and its role for API responses
func ToAccountDTO(account *models.Account, profile *models.Profile) dto.AccountDTO {
	out := dto.AccountDTO{
		ID:          account.ID,
		UUID:        account.UUID.String(),
		Username:    account.Username,
		Email:       account.Email,
		FirstName:   account.FirstName,
		LastName:    account.LastName,
		DisplayName: account.DisplayName(),
		CreatedAt:   account.CreatedAt,
	}
	if profile != nil {
		out.Role = string(profile.Role)
		out.IsBlocked = profile.Blocked()
	}
	return out
}

func toLocationDTO(l models.Location) dto.LocationDTO {
	return dto.LocationDTO{
		Ward:              l.Ward,
		Tole:              l.Tole,
		Address:           l.Address,
		Latitude:          l.Latitude,
		Longitude:         l.Longitude,
		ProfilePictureURL: l.ProfilePictureURL,
	}
}

// ToMeResponse flattens an identity; admins carry no role profile.
func ToMeResponse(identity *models.Identity) *dto.MeResponse {
	resp := &dto.MeResponse{
		Account: ToAccountDTO(identity.Account, identity.Profile),
		Role:    string(identity.Role()),
	}
	switch rp := identity.RoleProfile.(type) {
	case *models.FarmerProfile:
		resp.Profile = &dto.RoleProfileDTO{ID: rp.ID, PhoneNumber: rp.PhoneNumber, Location: toLocationDTO(rp.Location)}
	case *models.CustomerProfile:
		resp.Profile = &dto.RoleProfileDTO{ID: rp.ID, PhoneNumber: rp.PhoneNumber, Location: toLocationDTO(rp.Location)}
	}
	return resp
}

func toRatingDTO(summary *models.RatingSummary) *dto.RatingDTO {
	if summary == nil {
		return nil
	}
	return &dto.RatingDTO{
		FarmerProfileID: summary.FarmerProfileID,
		Average:         utils.RoundTo(summary.Average, 1),
		Count:           summary.Count,
	}
}
