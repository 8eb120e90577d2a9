// Package businessflow contains the core business logic and use cases for authentication workflows
package businessflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// SignupFlow handles registration by emailed one-time code
type SignupFlow interface {
	InitiateSignup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.SignupResponse, error)
	ResendOTP(ctx context.Context, req *dto.ResendOTPRequest, metadata *ClientMetadata) (*dto.ResendOTPResponse, error)
	VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, metadata *ClientMetadata) (*dto.VerifyOTPResponse, error)
	CheckAvailability(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error)
}

// SignupConfig tunes code lifetimes and the accepted email providers.
type SignupConfig struct {
	CodeTTL             time.Duration
	PendingSignupTTL    time.Duration
	AllowedEmailDomains []string
	BcryptCost          int
	// GenerateCode defaults to GenerateOTP
	GenerateCode func() (string, error)
}

func (c SignupConfig) withDefaults() SignupConfig {
	if c.CodeTTL <= 0 {
		c.CodeTTL = utils.OTPExpiry
	}
	if c.PendingSignupTTL <= 0 {
		c.PendingSignupTTL = utils.PendingSignupTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.GenerateCode == nil {
		c.GenerateCode = GenerateOTP
	}
	domains := make([]string, 0, len(c.AllowedEmailDomains))
	for _, d := range c.AllowedEmailDomains {
		domains = append(domains, strings.ToLower(strings.TrimSpace(d)))
	}
	c.AllowedEmailDomains = domains
	return c
}

// SignupFlowImpl implements the signup business flow
type SignupFlowImpl struct {
	identityResolver
	codeRepo        repository.OneTimeCodeRepository
	pending         services.PendingSignupStore
	notificationSvc services.NotificationService
	tx              repository.Transactor
	clock           utils.Clock
	cfg             SignupConfig
}

// NewSignupFlow creates a new signup flow instance
func NewSignupFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	farmerRepo repository.FarmerProfileRepository,
	customerRepo repository.CustomerProfileRepository,
	codeRepo repository.OneTimeCodeRepository,
	auditRepo repository.AuditLogRepository,
	pending services.PendingSignupStore,
	notificationSvc services.NotificationService,
	tx repository.Transactor,
	clock utils.Clock,
	cfg SignupConfig,
) SignupFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &SignupFlowImpl{
		identityResolver: identityResolver{
			accountRepo:  accountRepo,
			profileRepo:  profileRepo,
			farmerRepo:   farmerRepo,
			customerRepo: customerRepo,
			auditRepo:    auditRepo,
		},
		codeRepo:        codeRepo,
		pending:         pending,
		notificationSvc: notificationSvc,
		tx:              tx,
		clock:           clock,
		cfg:             cfg.withDefaults(),
	}
}

// InitiateSignup validates the form, parks it as a pending signup and emails a code
func (s *SignupFlowImpl) InitiateSignup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.SignupResponse, error) {
	signup, err := s.validateSignupRequest(ctx, req)
	if err != nil {
		return nil, NewBusinessError("SIGNUP_VALIDATION_FAILED", "Signup validation failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to secure password", err)
	}
	signup.PasswordHash = string(hash)
	signup.CreatedAt = s.clock.Now()

	token, err := s.pending.Put(ctx, signup, s.cfg.PendingSignupTTL)
	if err != nil {
		return nil, NewBusinessError("SIGNUP_FAILED", "Signup failed", err)
	}

	code, err := s.issueCode(ctx, signup.Email)
	if err != nil {
		_ = s.pending.Delete(ctx, token)
		return nil, NewBusinessError("OTP_GENERATION_FAILED", "Failed to issue verification code", err)
	}
	otpCodesIssued.WithLabelValues("signup").Inc()
	s.deliverCode(ctx, signup, code, metadata)

	createAuditLog(ctx, s.auditRepo, nil, models.AuditActionSignupInitiated,
		fmt.Sprintf("Signup initiated for %s as %s", utils.MaskEmail(signup.Email), signup.Role), true, nil, metadata)

	return &dto.SignupResponse{
		Message:       "Signup initiated successfully. OTP sent to your email.",
		SignupToken:   token,
		OTPTarget:     utils.MaskEmail(signup.Email),
		CodeExpiresIn: int(s.cfg.CodeTTL / time.Second),
	}, nil
}

// ResendOTP issues a new code once the current one has run out
func (s *SignupFlowImpl) ResendOTP(ctx context.Context, req *dto.ResendOTPRequest, metadata *ClientMetadata) (*dto.ResendOTPResponse, error) {
	signup, err := s.loadPending(ctx, req.SignupToken)
	if err != nil {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "OTP resend failed", err)
	}

	current, err := s.codeRepo.ByEmail(ctx, signup.Email)
	if err != nil {
		return nil, NewBusinessError("OTP_RESEND_FAILED", "OTP resend failed", err)
	}

	now := s.clock.Now()
	if current != nil {
		if wait := current.SecondsRemaining(now, s.cfg.CodeTTL); wait > 0 {
			return &dto.ResendOTPResponse{
				Message:          fmt.Sprintf("Please wait %d seconds before requesting a new code.", wait),
				Status:           dto.ResendStatusMustWait,
				SecondsRemaining: wait,
			}, nil
		}
	}

	code, err := s.issueCode(ctx, signup.Email)
	if err != nil {
		return nil, NewBusinessError("OTP_GENERATION_FAILED", "Failed to issue verification code", err)
	}
	otpCodesIssued.WithLabelValues("resend").Inc()
	s.deliverCode(ctx, signup, code, metadata)

	if err := s.pending.Touch(ctx, signup.Token, s.cfg.PendingSignupTTL); err != nil {
		log.Printf("signup: failed to extend pending signup %s: %v", utils.MaskEmail(signup.Email), err)
	}

	createAuditLog(ctx, s.auditRepo, nil, models.AuditActionOTPResent,
		fmt.Sprintf("OTP resent to %s", utils.MaskEmail(signup.Email)), true, nil, metadata)

	return &dto.ResendOTPResponse{
		Message:   "A new OTP has been sent to your email.",
		Status:    dto.ResendStatusCodeIssued,
		OTPTarget: utils.MaskEmail(signup.Email),
	}, nil
}

// VerifyOTP checks the code and, on success, creates the account with its profiles
func (s *SignupFlowImpl) VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, metadata *ClientMetadata) (*dto.VerifyOTPResponse, error) {
	signup, err := s.loadPending(ctx, req.SignupToken)
	if err != nil {
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "OTP verification failed", err)
	}

	if err := s.checkCode(ctx, signup.Email, req.OTPCode); err != nil {
		errMsg := err.Error()
		createAuditLog(ctx, s.auditRepo, nil, models.AuditActionOTPFailed,
			fmt.Sprintf("OTP verification failed for %s", utils.MaskEmail(signup.Email)), false, &errMsg, metadata)
		return nil, NewBusinessError("OTP_VERIFICATION_FAILED", "OTP verification failed", err)
	}

	var (
		account *models.Account
		profile *models.Profile
		already bool
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.accountRepo.ByEmail(txCtx, signup.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			account, already = existing, true
			return s.codeRepo.DeleteByEmail(txCtx, signup.Email)
		}

		account, profile, err = s.createIdentity(txCtx, signup)
		if err != nil {
			return err
		}
		return s.codeRepo.DeleteByEmail(txCtx, signup.Email)
	})
	if err != nil {
		account, already, err = s.resolveCreationFailure(ctx, signup, err)
		if err != nil {
			otpVerifications.WithLabelValues("failed").Inc()
			errMsg := err.Error()
			createAuditLog(ctx, s.auditRepo, nil, models.AuditActionOTPFailed,
				fmt.Sprintf("Account creation failed for %s", utils.MaskEmail(signup.Email)), false, &errMsg, metadata)
			return nil, NewBusinessError("ACCOUNT_CREATION_FAILED", "Account creation failed", err)
		}
	}

	if err := s.pending.Delete(ctx, signup.Token); err != nil {
		log.Printf("signup: failed to drop pending signup %s: %v", utils.MaskEmail(signup.Email), err)
	}

	if already {
		otpVerifications.WithLabelValues("already_registered").Inc()
		createAuditLog(ctx, s.auditRepo, &account.ID, models.AuditActionSignupDuplicate,
			fmt.Sprintf("Signup verified for existing account %d", account.ID), true, nil, metadata)
		return &dto.VerifyOTPResponse{
			Message: "This email is already registered. Please log in.",
			Status:  dto.VerifyStatusAlreadyRegistered,
		}, nil
	}

	otpVerifications.WithLabelValues("success").Inc()
	createAuditLog(ctx, s.auditRepo, &account.ID, models.AuditActionSignupCompleted,
		fmt.Sprintf("Signup completed successfully: %d", account.ID), true, nil, metadata)

	accountDTO := ToAccountDTO(account, profile)
	return &dto.VerifyOTPResponse{
		Message: "Account created successfully. You can now log in.",
		Status:  dto.VerifyStatusAccountCreated,
		Account: &accountDTO,
	}, nil
}

// CheckAvailability reports whether a username, email or phone number is still free
func (s *SignupFlowImpl) CheckAvailability(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error) {
	value := strings.TrimSpace(req.Value)
	var taken bool

	switch req.Field {
	case "username":
		account, err := s.accountRepo.ByUsername(ctx, value)
		if err != nil {
			return nil, NewBusinessError("AVAILABILITY_CHECK_FAILED", "Availability check failed", err)
		}
		taken = account != nil
	case "email":
		account, err := s.accountRepo.ByEmail(ctx, utils.NormalizeEmail(value))
		if err != nil {
			return nil, NewBusinessError("AVAILABILITY_CHECK_FAILED", "Availability check failed", err)
		}
		taken = account != nil
	case "phone_number":
		var err error
		taken, err = s.phoneTaken(ctx, value, 0)
		if err != nil {
			return nil, NewBusinessError("AVAILABILITY_CHECK_FAILED", "Availability check failed", err)
		}
	default:
		return nil, NewBusinessError("AVAILABILITY_VALIDATION_FAILED", "Unknown field", fmt.Errorf("unsupported field %q", req.Field))
	}

	return &dto.AvailabilityResponse{Field: req.Field, Available: !taken}, nil
}

func (s *SignupFlowImpl) validateSignupRequest(ctx context.Context, req *dto.SignupRequest) (*models.PendingSignup, error) {
	email := utils.NormalizeEmail(req.Email)
	if !slices.Contains(s.cfg.AllowedEmailDomains, utils.EmailDomain(email)) {
		return nil, ErrEmailDomainNotAllowed
	}

	role, err := models.ParseRole(req.Role)
	if err != nil || role == models.RoleAdmin {
		return nil, ErrInvalidRole
	}

	phone := strings.TrimSpace(req.PhoneNumber)
	if len(phone) < 8 || !utils.IsDigits(phone) {
		return nil, ErrInvalidPhoneNumber
	}

	username := strings.TrimSpace(req.Username)

	existing, err := s.accountRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyExists
	}

	existing, err = s.accountRepo.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameAlreadyExists
	}

	taken, err := s.phoneTaken(ctx, phone, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrPhoneAlreadyExists
	}

	return &models.PendingSignup{
		Username:    username,
		Email:       email,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		PhoneNumber: phone,
		Ward:        req.Ward,
		Tole:        strings.TrimSpace(req.Tole),
		Role:        role,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}, nil
}

func (s *SignupFlowImpl) loadPending(ctx context.Context, token string) (*models.PendingSignup, error) {
	signup, err := s.pending.Get(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrPendingSignupNotFound) {
			return nil, ErrSignupNotFound
		}
		return nil, err
	}
	return signup, nil
}

// issueCode replaces whatever code the email had. Stale codes of other
// emails are purged in the same transaction.
func (s *SignupFlowImpl) issueCode(ctx context.Context, email string) (string, error) {
	code, err := s.cfg.GenerateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.clock.Now()
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.codeRepo.DeleteIssuedBefore(txCtx, now.Add(-s.cfg.CodeTTL)); err != nil {
			return err
		}
		if err := s.codeRepo.DeleteByEmail(txCtx, email); err != nil {
			return err
		}
		return s.codeRepo.Issue(txCtx, &models.OneTimeCode{Email: email, Code: code, IssuedAt: now})
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// deliverCode sends the email. Delivery problems never fail the caller; the
// user can ask for a resend once the window runs out.
func (s *SignupFlowImpl) deliverCode(ctx context.Context, signup *models.PendingSignup, code string, metadata *ClientMetadata) {
	err := s.notificationSvc.SendSignupCode(ctx, signup.Email, signup.FirstName, code, s.cfg.CodeTTL)
	if err == nil {
		createAuditLog(ctx, s.auditRepo, nil, models.AuditActionOTPGenerated,
			fmt.Sprintf("OTP sent to %s", utils.MaskEmail(signup.Email)), true, nil, metadata)
		return
	}

	emailDeliveryFailures.Inc()
	log.Printf("signup: failed to email OTP to %s: %v", utils.MaskEmail(signup.Email), err)
	errMsg := err.Error()
	createAuditLog(ctx, s.auditRepo, nil, models.AuditActionOTPDeliveryFailed,
		fmt.Sprintf("Failed to email OTP to %s", utils.MaskEmail(signup.Email)), false, &errMsg, metadata)
}

// checkCode loads the code before the purge so an expired code can be told
// apart from a missing one.
func (s *SignupFlowImpl) checkCode(ctx context.Context, email, submitted string) error {
	code, err := s.codeRepo.ByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if _, err := s.codeRepo.DeleteIssuedBefore(ctx, now.Add(-s.cfg.CodeTTL)); err != nil {
		log.Printf("signup: failed to purge expired codes: %v", err)
	}

	switch {
	case code == nil:
		otpVerifications.WithLabelValues("missing").Inc()
		return ErrNoValidOTPFound
	case !code.IsValidAt(now, s.cfg.CodeTTL):
		otpVerifications.WithLabelValues("expired").Inc()
		return ErrOTPExpired
	case subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1:
		otpVerifications.WithLabelValues("invalid").Inc()
		return ErrInvalidOTPCode
	}
	return nil
}

func (s *SignupFlowImpl) createIdentity(ctx context.Context, signup *models.PendingSignup) (*models.Account, *models.Profile, error) {
	account := &models.Account{
		UUID:         uuid.New(),
		Username:     signup.Username,
		Email:        signup.Email,
		FirstName:    signup.FirstName,
		LastName:     signup.LastName,
		PasswordHash: signup.PasswordHash,
		IsActive:     utils.ToPtr(true),
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, nil, err
	}

	profile := &models.Profile{AccountID: account.ID, Role: signup.Role, IsBlocked: utils.ToPtr(false)}
	if err := s.profileRepo.Save(ctx, profile); err != nil {
		return nil, nil, err
	}

	location := models.Location{
		Ward:      signup.Ward,
		Tole:      signup.Tole,
		Address:   utils.DefaultAddress,
		Latitude:  utils.ToPtr(utils.ParseCoordinate(signup.Latitude)),
		Longitude: utils.ToPtr(utils.ParseCoordinate(signup.Longitude)),
	}
	phone := utils.ToPtr(signup.PhoneNumber)

	switch signup.Role {
	case models.RoleFarmer:
		if err := s.farmerRepo.Save(ctx, &models.FarmerProfile{AccountID: account.ID, PhoneNumber: phone, Location: location}); err != nil {
			return nil, nil, err
		}
	case models.RoleCustomer:
		if err := s.customerRepo.Save(ctx, &models.CustomerProfile{AccountID: account.ID, PhoneNumber: phone, Location: location}); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, ErrInvalidRole
	}
	return account, profile, nil
}

// resolveCreationFailure turns a rolled back creation into an outcome. A
// unique violation on the email means a concurrent verify won the race.
func (s *SignupFlowImpl) resolveCreationFailure(ctx context.Context, signup *models.PendingSignup, cause error) (*models.Account, bool, error) {
	if !repository.IsDuplicateKey(cause) {
		return nil, false, fmt.Errorf("%w: %w", ErrAccountCreationFailed, cause)
	}

	existing, err := s.accountRepo.ByEmail(ctx, signup.Email)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrAccountCreationFailed, err)
	}
	if existing == nil {
		return nil, false, ErrIdentityTaken
	}
	if err := s.codeRepo.DeleteByEmail(ctx, signup.Email); err != nil {
		log.Printf("signup: failed to drop code for %s: %v", utils.MaskEmail(signup.Email), err)
	}
	return existing, true, nil
}
