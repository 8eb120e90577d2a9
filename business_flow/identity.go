package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// identityResolver loads an account together with its role variant. Every flow
// that acts on behalf of a user goes through it, so blocked and inactive
// accounts are refused in one place.
type identityResolver struct {
	accountRepo  repository.AccountRepository
	profileRepo  repository.ProfileRepository
	farmerRepo   repository.FarmerProfileRepository
	customerRepo repository.CustomerProfileRepository
	auditRepo    repository.AuditLogRepository
}

func (r *identityResolver) resolve(ctx context.Context, accountID uint) (*models.Identity, error) {
	account, err := r.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if account.IsActive != nil && !*account.IsActive {
		return nil, ErrAccountInactive
	}

	profile, err := r.profileRepo.ByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.Blocked() {
		return nil, ErrAccountBlocked
	}

	identity := &models.Identity{Account: account, Profile: profile}
	switch profile.Role {
	case models.RoleFarmer:
		fp, err := r.farmerRepo.ByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if fp == nil {
			return nil, ErrProfileNotFound
		}
		identity.RoleProfile = fp
	case models.RoleCustomer:
		cp, err := r.customerRepo.ByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			return nil, ErrProfileNotFound
		}
		identity.RoleProfile = cp
	case models.RoleAdmin:
		identity.RoleProfile = &models.AdminProfile{AccountID: accountID}
	default:
		return nil, ErrInvalidRole
	}
	return identity, nil
}

func (r *identityResolver) customer(ctx context.Context, accountID uint) (*models.Identity, *models.CustomerProfile, error) {
	identity, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	cp, ok := identity.Customer()
	if !ok {
		return nil, nil, ErrRoleNotAllowed
	}
	return identity, cp, nil
}

func (r *identityResolver) farmer(ctx context.Context, accountID uint) (*models.Identity, *models.FarmerProfile, error) {
	identity, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	fp, ok := identity.Farmer()
	if !ok {
		return nil, nil, ErrRoleNotAllowed
	}
	return identity, fp, nil
}

func (r *identityResolver) admin(ctx context.Context, accountID uint) (*models.Identity, error) {
	identity, err := r.resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if identity.Role() != models.RoleAdmin {
		return nil, ErrRoleNotAllowed
	}
	return identity, nil
}

// phoneTaken checks both profile tables; exceptAccountID lets a user keep their own number.
func (r *identityResolver) phoneTaken(ctx context.Context, phone string, exceptAccountID uint) (bool, error) {
	fp, err := r.farmerRepo.ByPhoneNumber(ctx, phone)
	if err != nil {
		return false, err
	}
	if fp != nil && fp.AccountID != exceptAccountID {
		return true, nil
	}
	cp, err := r.customerRepo.ByPhoneNumber(ctx, phone)
	if err != nil {
		return false, err
	}
	return cp != nil && cp.AccountID != exceptAccountID, nil
}

// forbidden records a refused request as an abuse signal and returns err unchanged.
func (r *identityResolver) forbidden(ctx context.Context, operation string, accountID uint, target string, err error, metadata *ClientMetadata) error {
	forbiddenAttempts.WithLabelValues(operation).Inc()
	log.Printf("security: forbidden %s by account %d on %s: %v", operation, accountID, target, err)

	errMsg := err.Error()
	createAuditLog(ctx, r.auditRepo, utils.ToPtr(accountID), models.AuditActionForbiddenAttempt,
		fmt.Sprintf("%s on %s refused", operation, target), false, &errMsg, metadata)
	return err
}
