package models

import (
	"fmt"
	"strings"
)

// Role is the account's marketplace role.
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleFarmer, RoleCustomer, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts any casing of farmer, customer or admin.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RoleProfile is the role-specific half of an identity. The set of
// implementations is closed: *FarmerProfile, *CustomerProfile, *AdminProfile.
type RoleProfile interface {
	Role() Role
	roleProfile()
}

func (*FarmerProfile) Role() Role   { return RoleFarmer }
func (*FarmerProfile) roleProfile() {}

func (*CustomerProfile) Role() Role   { return RoleCustomer }
func (*CustomerProfile) roleProfile() {}

// AdminProfile carries no extra data; admins only need the shared profile row.
type AdminProfile struct {
	AccountID uint `json:"account_id"`
}

func (*AdminProfile) Role() Role   { return RoleAdmin }
func (*AdminProfile) roleProfile() {}

// Identity is an account resolved together with its role variant.
type Identity struct {
	Account     *Account    `json:"account"`
	Profile     *Profile    `json:"profile"`
	RoleProfile RoleProfile `json:"role_profile"`
}

func (i *Identity) Role() Role {
	if i == nil || i.Profile == nil {
		return ""
	}
	return i.Profile.Role
}

func (i *Identity) Farmer() (*FarmerProfile, bool) {
	if i == nil {
		return nil, false
	}
	fp, ok := i.RoleProfile.(*FarmerProfile)
	return fp, ok
}

func (i *Identity) Customer() (*CustomerProfile, bool) {
	if i == nil {
		return nil, false
	}
	cp, ok := i.RoleProfile.(*CustomerProfile)
	return cp, ok
}
