package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

func randomDigits(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('0' + rand.Intn(10))
	}
	return string(out)
}

// CreateAccount inserts an account with its shared profile row.
func (tf *TestFixtures) CreateAccount(role models.Role) (*models.Account, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := randomDigits(8)
	account := &models.Account{
		UUID:         uuid.New(),
		Username:     fmt.Sprintf("%s_%s", role, suffix),
		Email:        fmt.Sprintf("%s.%s@gmail.com", role, suffix),
		FirstName:    "Test",
		LastName:     string(role),
		PasswordHash: string(hashed),
		IsActive:     utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	profile := &models.Profile{AccountID: account.ID, Role: role, IsBlocked: utils.ToPtr(false)}
	if err := tf.DB.DB.Create(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return account, nil
}

func testLocation() models.Location {
	return models.Location{
		Ward:      "Ward 3",
		Tole:      "Bazaar",
		Address:   utils.DefaultAddress,
		Latitude:  utils.ToPtr(28.3507),
		Longitude: utils.ToPtr(83.5653),
	}
}

// CreateFarmer inserts a farmer account with a populated farmer profile.
func (tf *TestFixtures) CreateFarmer() (*models.FarmerProfile, error) {
	account, err := tf.CreateAccount(models.RoleFarmer)
	if err != nil {
		return nil, err
	}
	fp := &models.FarmerProfile{
		AccountID:   account.ID,
		PhoneNumber: utils.ToPtr("98" + randomDigits(8)),
		Location:    testLocation(),
	}
	if err := tf.DB.DB.Create(fp).Error; err != nil {
		return nil, fmt.Errorf("failed to create farmer profile: %w", err)
	}
	fp.Account = account
	return fp, nil
}

// CreateCustomer inserts a customer account with a populated customer profile.
func (tf *TestFixtures) CreateCustomer() (*models.CustomerProfile, error) {
	account, err := tf.CreateAccount(models.RoleCustomer)
	if err != nil {
		return nil, err
	}
	cp := &models.CustomerProfile{
		AccountID:   account.ID,
		PhoneNumber: utils.ToPtr("97" + randomDigits(8)),
		Location:    testLocation(),
	}
	if err := tf.DB.DB.Create(cp).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer profile: %w", err)
	}
	cp.Account = account
	return cp, nil
}

// CreateProduct lists a product for the farmer.
func (tf *TestFixtures) CreateProduct(farmer *models.FarmerProfile, subCategory string, synonyms ...string) (*models.Product, error) {
	p := &models.Product{
		FarmerProfileID: farmer.ID,
		MainCategory:    "Vegetables",
		SubCategory:     subCategory,
		Quantity:        20,
		Unit:            "kg",
		Price:           80,
		Synonyms:        pq.StringArray(synonyms),
		DatePosted:      time.Now().UTC(),
	}
	if err := tf.DB.DB.Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}
