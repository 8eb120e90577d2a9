package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// Redirect destinations handed to clients after login.
const (
	DestinationAdminDashboard = "admin-dashboard"
)

// ProfileFlow manages identities, their role profiles and account lifecycle
type ProfileFlow interface {
	EnsureProfile(ctx context.Context, accountID uint, role models.Role) (*models.Identity, error)
	RoleRedirect(ctx context.Context, accountID uint, role models.Role, metadata *ClientMetadata) (*dto.RedirectResponse, error)
	GetMe(ctx context.Context, accountID uint) (*dto.MeResponse, error)
	UpdateProfile(ctx context.Context, accountID uint, req *dto.UpdateProfileRequest, metadata *ClientMetadata) (*dto.MeResponse, error)
	DeleteAccount(ctx context.Context, accountID uint, req *dto.DeleteAccountRequest, metadata *ClientMetadata) (*dto.DeleteAccountResponse, error)
	SetBlocked(ctx context.Context, adminAccountID, targetAccountID uint, blocked bool, metadata *ClientMetadata) (*dto.AccountStatusResponse, error)
	EnsureAdmin(ctx context.Context, email, username, password string, bcryptCost int) error
}

// ProfileFlowImpl implements ProfileFlow
type ProfileFlowImpl struct {
	identityResolver
	deletedRepo repository.DeletedAccountRepository
	tx          repository.Transactor
	clock       utils.Clock
}

// NewProfileFlow creates a new profile flow instance
func NewProfileFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	farmerRepo repository.FarmerProfileRepository,
	customerRepo repository.CustomerProfileRepository,
	deletedRepo repository.DeletedAccountRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	clock utils.Clock,
) ProfileFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ProfileFlowImpl{
		identityResolver: identityResolver{
			accountRepo:  accountRepo,
			profileRepo:  profileRepo,
			farmerRepo:   farmerRepo,
			customerRepo: customerRepo,
			auditRepo:    auditRepo,
		},
		deletedRepo: deletedRepo,
		tx:          tx,
		clock:       clock,
	}
}

// RedirectFor picks the screen for an identity. Farmers and customers are sent
// to fill in their profile until a picture is set.
func RedirectFor(identity *models.Identity) dto.RedirectResponse {
	role := identity.Role()
	out := dto.RedirectResponse{Role: string(role)}

	var location models.Location
	switch rp := identity.RoleProfile.(type) {
	case *models.FarmerProfile:
		location = rp.Location
	case *models.CustomerProfile:
		location = rp.Location
	default:
		out.Destination = DestinationAdminDashboard
		return out
	}

	if !location.HasPicture() {
		out.Destination = fmt.Sprintf("update-%s-profile", role)
	} else {
		out.Destination = fmt.Sprintf("%s-dashboard", role)
	}
	return out
}

// EnsureProfile returns the identity, creating the shared profile (with role)
// and the role profile when missing. Blocked accounts are refused.
func (s *ProfileFlowImpl) EnsureProfile(ctx context.Context, accountID uint, role models.Role) (*models.Identity, error) {
	account, err := s.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if account.IsActive != nil && !*account.IsActive {
		return nil, ErrAccountInactive
	}

	var identity *models.Identity
	createdProfile := false
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		profile, err := s.profileRepo.ByAccountID(txCtx, accountID)
		if err != nil {
			return err
		}
		if profile == nil {
			if !role.IsValid() {
				return ErrProfileNotFound
			}
			profile = &models.Profile{AccountID: accountID, Role: role, IsBlocked: utils.ToPtr(false)}
			if err := s.profileRepo.Save(txCtx, profile); err != nil {
				return err
			}
			createdProfile = true
		}
		if profile.Blocked() {
			return ErrAccountBlocked
		}

		rp, err := s.ensureRoleProfile(txCtx, accountID, profile.Role)
		if err != nil {
			return err
		}
		identity = &models.Identity{Account: account, Profile: profile, RoleProfile: rp}
		return nil
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			// a concurrent call created the rows first
			return s.resolve(ctx, accountID)
		}
		return nil, err
	}

	if createdProfile {
		createAuditLog(ctx, s.auditRepo, &accountID, models.AuditActionProfileCreated,
			fmt.Sprintf("Profile created with role %s", identity.Role()), true, nil, nil)
	}
	return identity, nil
}

func (s *ProfileFlowImpl) ensureRoleProfile(ctx context.Context, accountID uint, role models.Role) (models.RoleProfile, error) {
	switch role {
	case models.RoleFarmer:
		fp, err := s.farmerRepo.ByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if fp == nil {
			fp = &models.FarmerProfile{AccountID: accountID, Location: models.Location{Address: utils.DefaultAddress}}
			if err := s.farmerRepo.Save(ctx, fp); err != nil {
				return nil, err
			}
		}
		return fp, nil
	case models.RoleCustomer:
		cp, err := s.customerRepo.ByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			cp = &models.CustomerProfile{AccountID: accountID, Location: models.Location{Address: utils.DefaultAddress}}
			if err := s.customerRepo.Save(ctx, cp); err != nil {
				return nil, err
			}
		}
		return cp, nil
	case models.RoleAdmin:
		return &models.AdminProfile{AccountID: accountID}, nil
	}
	return nil, ErrInvalidRole
}

// RoleRedirect ensures the profile exists and names the next screen
func (s *ProfileFlowImpl) RoleRedirect(ctx context.Context, accountID uint, role models.Role, metadata *ClientMetadata) (*dto.RedirectResponse, error) {
	identity, err := s.EnsureProfile(ctx, accountID, role)
	if err != nil {
		if errors.Is(err, ErrAccountBlocked) {
			err = s.forbidden(ctx, "role_redirect", accountID, "dashboard", err, metadata)
			return nil, NewBusinessError("ACCOUNT_BLOCKED", "Your account has been blocked", err)
		}
		return nil, NewBusinessError("ROLE_REDIRECT_FAILED", "Failed to resolve profile", err)
	}

	redirect := RedirectFor(identity)
	return &redirect, nil
}

// GetMe returns the caller's identity
func (s *ProfileFlowImpl) GetMe(ctx context.Context, accountID uint) (*dto.MeResponse, error) {
	identity, err := s.resolve(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to load profile", err)
	}
	return ToMeResponse(identity), nil
}

// UpdateProfile edits contact and location fields of a farmer or customer profile
func (s *ProfileFlowImpl) UpdateProfile(ctx context.Context, accountID uint, req *dto.UpdateProfileRequest, metadata *ClientMetadata) (*dto.MeResponse, error) {
	if req.PhoneNumber == nil && req.Ward == nil && req.Tole == nil && req.Latitude == nil &&
		req.Longitude == nil && req.ProfilePictureURL == nil {
		return nil, NewBusinessError("PROFILE_VALIDATION_FAILED", "Profile validation failed", ErrNothingToUpdate)
	}

	identity, err := s.resolve(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Profile update failed", err)
	}

	var phone *string
	if req.PhoneNumber != nil {
		p := strings.TrimSpace(*req.PhoneNumber)
		if len(p) < 8 || !utils.IsDigits(p) {
			return nil, NewBusinessError("PROFILE_VALIDATION_FAILED", "Profile validation failed", ErrInvalidPhoneNumber)
		}
		taken, err := s.phoneTaken(ctx, p, accountID)
		if err != nil {
			return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Profile update failed", err)
		}
		if taken {
			return nil, NewBusinessError("PHONE_ALREADY_EXISTS", "Phone number already in use", ErrPhoneAlreadyExists)
		}
		phone = &p
	}

	switch rp := identity.RoleProfile.(type) {
	case *models.FarmerProfile:
		applyProfileUpdate(&rp.Location, req)
		if phone != nil {
			rp.PhoneNumber = phone
		}
		err = s.farmerRepo.Update(ctx, rp)
	case *models.CustomerProfile:
		applyProfileUpdate(&rp.Location, req)
		if phone != nil {
			rp.PhoneNumber = phone
		}
		err = s.customerRepo.Update(ctx, rp)
	default:
		return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Admins have no editable profile", ErrRoleNotAllowed)
	}
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewBusinessError("PHONE_ALREADY_EXISTS", "Phone number already in use", ErrPhoneAlreadyExists)
		}
		return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Profile update failed", err)
	}

	createAuditLog(ctx, s.auditRepo, &accountID, models.AuditActionProfileUpdated, "Profile updated", true, nil, metadata)
	return ToMeResponse(identity), nil
}

func applyProfileUpdate(l *models.Location, req *dto.UpdateProfileRequest) {
	if req.Ward != nil {
		l.Ward = *req.Ward
	}
	if req.Tole != nil {
		l.Tole = strings.TrimSpace(*req.Tole)
	}
	if req.Latitude != nil {
		l.Latitude = utils.ToPtr(utils.ParseCoordinate(*req.Latitude))
	}
	if req.Longitude != nil {
		l.Longitude = utils.ToPtr(utils.ParseCoordinate(*req.Longitude))
	}
	if req.ProfilePictureURL != nil {
		l.ProfilePictureURL = req.ProfilePictureURL
	}
}

// DeleteAccount records a tombstone and removes the account in one transaction.
// Profiles, rooms, messages, reviews and products go with it via FK cascades.
func (s *ProfileFlowImpl) DeleteAccount(ctx context.Context, accountID uint, req *dto.DeleteAccountRequest, metadata *ClientMetadata) (*dto.DeleteAccountResponse, error) {
	account, err := s.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_DELETION_FAILED", "Account deletion failed", err)
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}
	if req == nil || utils.NormalizeEmail(req.ConfirmationEmail) != utils.NormalizeEmail(account.Email) {
		return nil, NewBusinessError("DELETE_CONFIRMATION_MISMATCH", "Confirmation email does not match your account", ErrConfirmationMismatch)
	}

	var role models.Role
	if profile, err := s.profileRepo.ByAccountID(ctx, accountID); err == nil && profile != nil {
		role = profile.Role
	}

	var reason *string
	if req.Reason != nil {
		if r := strings.TrimSpace(*req.Reason); r != "" {
			reason = &r
		}
	}

	deletedAt := s.clock.Now()
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		tombstone := &models.DeletedAccount{
			AccountID: account.ID,
			Email:     account.Email,
			Username:  account.Username,
			Role:      role,
			Reason:    reason,
			DeletedAt: deletedAt,
		}
		if err := s.deletedRepo.Save(txCtx, tombstone); err != nil {
			return err
		}
		return s.accountRepo.Delete(txCtx, account.ID)
	})
	if err != nil {
		errMsg := err.Error()
		createAuditLog(ctx, s.auditRepo, &accountID, models.AuditActionAccountDeleted,
			"Account deletion failed", false, &errMsg, metadata)
		return nil, NewBusinessError("ACCOUNT_DELETION_FAILED", "Account deletion failed", err)
	}

	// the account row is gone, so the entry is not linked to it
	createAuditLog(ctx, s.auditRepo, nil, models.AuditActionAccountDeleted,
		fmt.Sprintf("Account %d (%s) deleted", account.ID, utils.MaskEmail(account.Email)), true, nil, metadata)

	return &dto.DeleteAccountResponse{
		Message:   "Your account has been deleted.",
		DeletedAt: deletedAt,
	}, nil
}

// SetBlocked lets an administrator block or unblock a farmer or customer
func (s *ProfileFlowImpl) SetBlocked(ctx context.Context, adminAccountID, targetAccountID uint, blocked bool, metadata *ClientMetadata) (*dto.AccountStatusResponse, error) {
	if _, err := s.admin(ctx, adminAccountID); err != nil {
		if IsForbiddenError(err) {
			err = s.forbidden(ctx, "set_blocked", adminAccountID, fmt.Sprintf("account %d", targetAccountID), err, metadata)
		}
		return nil, NewBusinessError("MODERATION_FORBIDDEN", "Only administrators can moderate accounts", err)
	}
	if adminAccountID == targetAccountID {
		return nil, NewBusinessError("MODERATION_FORBIDDEN", "Administrators cannot block themselves", ErrCannotModerateSelf)
	}

	target, err := s.profileRepo.ByAccountID(ctx, targetAccountID)
	if err != nil {
		return nil, NewBusinessError("MODERATION_FAILED", "Failed to update account status", err)
	}
	if target == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrProfileNotFound)
	}
	if target.Role == models.RoleAdmin {
		return nil, NewBusinessError("MODERATION_FORBIDDEN", "Administrators cannot be blocked", ErrCannotModerateAdmin)
	}

	if err := s.profileRepo.SetBlocked(ctx, targetAccountID, blocked); err != nil {
		return nil, NewBusinessError("MODERATION_FAILED", "Failed to update account status", err)
	}

	action := models.AuditActionAccountUnblocked
	if blocked {
		action = models.AuditActionAccountBlocked
	}
	createAuditLog(ctx, s.auditRepo, &targetAccountID, action,
		fmt.Sprintf("Account %d %s by admin %d", targetAccountID, action, adminAccountID), true, nil, metadata)

	return &dto.AccountStatusResponse{
		AccountID: targetAccountID,
		Role:      string(target.Role),
		IsBlocked: blocked,
	}, nil
}

// EnsureAdmin seeds the configured administrator. An existing account with a
// different role is left untouched.
func (s *ProfileFlowImpl) EnsureAdmin(ctx context.Context, email, username, password string, bcryptCost int) error {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	account, err := s.accountRepo.ByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account != nil {
		profile, err := s.profileRepo.ByAccountID(ctx, account.ID)
		if err != nil {
			return err
		}
		if profile != nil && profile.Role != models.RoleAdmin {
			log.Printf("admin: %s already registered as %s, not promoting", utils.MaskEmail(email), profile.Role)
			return nil
		}
		_, err = s.EnsureProfile(ctx, account.ID, models.RoleAdmin)
		return err
	}

	if password == "" {
		return errors.New("admin password is required to seed the admin account")
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if username == "" {
		username = "admin"
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		account := &models.Account{
			UUID:         uuid.New(),
			Username:     username,
			Email:        email,
			FirstName:    "Admin",
			PasswordHash: string(hash),
			IsActive:     utils.ToPtr(true),
		}
		if err := s.accountRepo.Save(txCtx, account); err != nil {
			return err
		}
		return s.profileRepo.Save(txCtx, &models.Profile{AccountID: account.ID, Role: models.RoleAdmin, IsBlocked: utils.ToPtr(false)})
	})
}
