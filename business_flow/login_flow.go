package businessflow

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// LoginFlow handles password login, token refresh and password reset
type LoginFlow interface {
	Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest, metadata *ClientMetadata) (*dto.ForgotPasswordResponse, error)
	ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest, metadata *ClientMetadata) (*dto.ResetPasswordResponse, error)
}

// LoginConfig tunes token lifetimes and password hashing.
type LoginConfig struct {
	AccessTokenTTL   time.Duration
	PasswordResetTTL time.Duration
	BcryptCost       int
}

func (c LoginConfig) withDefaults() LoginConfig {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = utils.AccessTokenTTL
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = utils.PasswordResetTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return c
}

// LoginFlowImpl implements LoginFlow
type LoginFlowImpl struct {
	accountRepo     repository.AccountRepository
	profileRepo     repository.ProfileRepository
	auditRepo       repository.AuditLogRepository
	profileFlow     ProfileFlow
	tokenService    services.TokenService
	notificationSvc services.NotificationService
	cfg             LoginConfig
	clock           utils.Clock
}

// NewLoginFlow creates a new login flow instance
func NewLoginFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	auditRepo repository.AuditLogRepository,
	profileFlow ProfileFlow,
	tokenService services.TokenService,
	notificationSvc services.NotificationService,
	cfg LoginConfig,
	clock utils.Clock,
) LoginFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &LoginFlowImpl{
		accountRepo:     accountRepo,
		profileRepo:     profileRepo,
		auditRepo:       auditRepo,
		profileFlow:     profileFlow,
		tokenService:    tokenService,
		notificationSvc: notificationSvc,
		cfg:             cfg.withDefaults(),
		clock:           clock,
	}
}

// Login checks credentials, makes sure the profile exists and issues tokens
func (l *LoginFlowImpl) Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.LoginResponse, error) {
	email := utils.NormalizeEmail(req.Email)

	var requested models.Role
	if req.Role != "" {
		r, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, NewBusinessError("LOGIN_VALIDATION_FAILED", "Login validation failed", ErrInvalidRole)
		}
		requested = r
	}

	account, err := l.accountRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}
	if account == nil {
		l.auditFailure(ctx, nil, email, ErrIncorrectPassword, metadata)
		return nil, NewBusinessError("INCORRECT_CREDENTIALS", "Incorrect email or password", ErrIncorrectPassword)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		l.auditFailure(ctx, &account.ID, email, ErrIncorrectPassword, metadata)
		return nil, NewBusinessError("INCORRECT_CREDENTIALS", "Incorrect email or password", ErrIncorrectPassword)
	}
	if account.IsActive != nil && !*account.IsActive {
		l.auditFailure(ctx, &account.ID, email, ErrAccountInactive, metadata)
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Account is inactive", ErrAccountInactive)
	}

	if requested != "" {
		profile, err := l.profileRepo.ByAccountID(ctx, account.ID)
		if err != nil {
			return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
		}
		if profile != nil && profile.Role != requested {
			l.auditFailure(ctx, &account.ID, email, ErrRoleMismatch, metadata)
			return nil, NewBusinessError("ROLE_MISMATCH", fmt.Sprintf("This account is not registered as a %s", requested), ErrRoleMismatch)
		}
	}

	identity, err := l.profileFlow.EnsureProfile(ctx, account.ID, requested)
	if err != nil {
		l.auditFailure(ctx, &account.ID, email, err, metadata)
		if errors.Is(err, ErrAccountBlocked) {
			return nil, NewBusinessError("ACCOUNT_BLOCKED", "Your account has been blocked", err)
		}
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	accessToken, refreshToken, err := l.tokenService.GenerateTokens(account.ID, identity.Role())
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to issue tokens", err)
	}

	if err := l.accountRepo.UpdateLastLogin(ctx, account.ID, l.clock.Now()); err != nil {
		log.Printf("login: failed to record last login for account %d: %v", account.ID, err)
	}

	createAuditLog(ctx, l.auditRepo, &account.ID, models.AuditActionLoginSuccess,
		fmt.Sprintf("Login as %s", identity.Role()), true, nil, metadata)

	return &dto.LoginResponse{
		Message: "Login successful",
		Tokens: dto.TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(l.cfg.AccessTokenTTL / time.Second),
		},
		Account:  ToAccountDTO(identity.Account, identity.Profile),
		Redirect: RedirectFor(identity),
	}, nil
}

// Refresh rotates a refresh token. Blocked accounts cannot refresh.
func (l *LoginFlowImpl) Refresh(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error) {
	claims, err := l.tokenService.ValidateToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid refresh token", err)
	}

	profile, err := l.profileRepo.ByAccountID(ctx, claims.AccountID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_REFRESH_FAILED", "Token refresh failed", err)
	}
	if profile == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrProfileNotFound)
	}
	if profile.Blocked() {
		l.auditFailure(ctx, &claims.AccountID, "", ErrAccountBlocked, metadata)
		return nil, NewBusinessError("ACCOUNT_BLOCKED", "Your account has been blocked", ErrAccountBlocked)
	}

	accessToken, refreshToken, err := l.tokenService.RefreshToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid refresh token", err)
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(l.cfg.AccessTokenTTL / time.Second),
	}, nil
}

// Logout revokes the presented access token
func (l *LoginFlowImpl) Logout(ctx context.Context, accessToken string) error {
	if err := l.tokenService.RevokeToken(accessToken); err != nil {
		return NewBusinessError("LOGOUT_FAILED", "Logout failed", err)
	}
	return nil
}

// ForgotPassword emails a reset token. Unregistered emails are refused.
func (l *LoginFlowImpl) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest, metadata *ClientMetadata) (*dto.ForgotPasswordResponse, error) {
	email := utils.NormalizeEmail(req.Email)

	account, err := l.accountRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("FORGOT_PASSWORD_FAILED", "Forgot password failed", err)
	}
	if account == nil {
		l.auditReset(ctx, nil, models.AuditActionPasswordResetFailed,
			fmt.Sprintf("Reset requested for unregistered %s", utils.MaskEmail(email)), ErrEmailNotRegistered, metadata)
		return nil, NewBusinessError("EMAIL_NOT_REGISTERED", "No account is registered with this email", ErrEmailNotRegistered)
	}
	if account.IsActive != nil && !*account.IsActive {
		l.auditReset(ctx, &account.ID, models.AuditActionPasswordResetFailed, "Reset requested for inactive account", ErrAccountInactive, metadata)
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Account is inactive", ErrAccountInactive)
	}

	token, err := l.tokenService.IssuePasswordResetToken(account.ID, passwordStamp(account.PasswordHash), l.cfg.PasswordResetTTL)
	if err != nil {
		return nil, NewBusinessError("FORGOT_PASSWORD_FAILED", "Forgot password failed", err)
	}
	if err := l.notificationSvc.SendPasswordReset(ctx, account.Email, account.FirstName, token, l.cfg.PasswordResetTTL); err != nil {
		emailDeliveryFailures.Inc()
		l.auditReset(ctx, &account.ID, models.AuditActionPasswordResetFailed, "Reset email could not be sent", err, metadata)
		return nil, NewBusinessError("PASSWORD_RESET_EMAIL_FAILED", "Failed to send the reset email", err)
	}

	l.auditReset(ctx, &account.ID, models.AuditActionPasswordResetRequested,
		fmt.Sprintf("Reset token sent to %s", utils.MaskEmail(account.Email)), nil, metadata)

	return &dto.ForgotPasswordResponse{
		Message:   "A password reset token has been sent to your email.",
		SentTo:    utils.MaskEmail(account.Email),
		ExpiresIn: int(l.cfg.PasswordResetTTL / time.Second),
	}, nil
}

// ResetPassword redeems a reset token. A token stops working once the
// password it was issued against has changed.
func (l *LoginFlowImpl) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest, metadata *ClientMetadata) (*dto.ResetPasswordResponse, error) {
	invalid := func(accountID *uint, cause error) error {
		l.auditReset(ctx, accountID, models.AuditActionPasswordResetFailed, "Password reset rejected", cause, metadata)
		return NewBusinessError("RESET_TOKEN_INVALID", "This reset token is invalid or has expired", fmt.Errorf("%w: %v", ErrResetTokenInvalid, cause))
	}

	accountID, stamp, err := l.tokenService.ValidatePasswordResetToken(req.Token)
	if err != nil {
		return nil, invalid(nil, err)
	}

	account, err := l.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("RESET_PASSWORD_FAILED", "Password reset failed", err)
	}
	if account == nil {
		return nil, invalid(nil, ErrAccountNotFound)
	}
	if subtle.ConstantTimeCompare([]byte(stamp), []byte(passwordStamp(account.PasswordHash))) != 1 {
		return nil, invalid(&account.ID, errors.New("password changed since the token was issued"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), l.cfg.BcryptCost)
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to secure password", err)
	}
	if err := l.accountRepo.UpdatePasswordHash(ctx, account.ID, string(hash)); err != nil {
		return nil, NewBusinessError("RESET_PASSWORD_FAILED", "Password reset failed", err)
	}

	l.auditReset(ctx, &account.ID, models.AuditActionPasswordResetCompleted, "Password changed by reset token", nil, metadata)
	return &dto.ResetPasswordResponse{
		Message:           "Your password has been changed. You can now log in.",
		PasswordChangedAt: l.clock.Now(),
	}, nil
}

// passwordStamp digests a password hash so reset tokens carry no hash material.
func passwordStamp(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:12])
}

func (l *LoginFlowImpl) auditReset(ctx context.Context, accountID *uint, action, desc string, cause error, metadata *ClientMetadata) {
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}
	createAuditLog(ctx, l.auditRepo, accountID, action, desc, cause == nil, errMsg, metadata)
}

func (l *LoginFlowImpl) auditFailure(ctx context.Context, accountID *uint, email string, cause error, metadata *ClientMetadata) {
	errMsg := cause.Error()
	desc := "Login failed"
	if email != "" {
		desc = fmt.Sprintf("Login failed for %s", utils.MaskEmail(email))
	}
	createAuditLog(ctx, l.auditRepo, accountID, models.AuditActionLoginFailed, desc, false, &errMsg, metadata)
}
