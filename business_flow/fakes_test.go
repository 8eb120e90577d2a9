package businessflow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/kisaan-market/kisaan/app/realtime"
	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// memDB is an in-memory stand-in for the relational store. It enforces the
// unique keys and FK cascades the flows rely on.
type memDB struct {
	mu    sync.Mutex
	clock utils.Clock
	seq   uint
	fail  map[string]error

	accounts  map[uint]*models.Account
	profiles  map[uint]*models.Profile
	farmers   map[uint]*models.FarmerProfile
	customers map[uint]*models.CustomerProfile
	codes     map[uint]*models.OneTimeCode
	rooms     map[uint]*models.ChatRoom
	messages  map[uint]*models.Message
	reviews   map[uint]*models.Review
	products  map[uint]*models.Product
	audits    map[uint]*models.AuditLog
	deleted   map[uint]*models.DeletedAccount
}

func newMemDB(clock utils.Clock) *memDB {
	return &memDB{
		clock:     clock,
		fail:      make(map[string]error),
		accounts:  make(map[uint]*models.Account),
		profiles:  make(map[uint]*models.Profile),
		farmers:   make(map[uint]*models.FarmerProfile),
		customers: make(map[uint]*models.CustomerProfile),
		codes:     make(map[uint]*models.OneTimeCode),
		rooms:     make(map[uint]*models.ChatRoom),
		messages:  make(map[uint]*models.Message),
		reviews:   make(map[uint]*models.Review),
		products:  make(map[uint]*models.Product),
		audits:    make(map[uint]*models.AuditLog),
		deleted:   make(map[uint]*models.DeletedAccount),
	}
}

func (db *memDB) failWith(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail[op] = err
}

// caller holds mu
func (db *memDB) failure(op string) error {
	return db.fail[op]
}

func (db *memDB) nextID() uint {
	db.seq++
	return db.seq
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTable[T any](m map[uint]*T) map[uint]*T {
	out := make(map[uint]*T, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

// rows returns copies ordered by id.
func rows[T any](m map[uint]*T) []*T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w", what, gorm.ErrDuplicatedKey)
}

type memSnapshot struct {
	seq       uint
	accounts  map[uint]*models.Account
	profiles  map[uint]*models.Profile
	farmers   map[uint]*models.FarmerProfile
	customers map[uint]*models.CustomerProfile
	codes     map[uint]*models.OneTimeCode
	rooms     map[uint]*models.ChatRoom
	messages  map[uint]*models.Message
	reviews   map[uint]*models.Review
	products  map[uint]*models.Product
	audits    map[uint]*models.AuditLog
	deleted   map[uint]*models.DeletedAccount
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		seq:       db.seq,
		accounts:  cloneTable(db.accounts),
		profiles:  cloneTable(db.profiles),
		farmers:   cloneTable(db.farmers),
		customers: cloneTable(db.customers),
		codes:     cloneTable(db.codes),
		rooms:     cloneTable(db.rooms),
		messages:  cloneTable(db.messages),
		reviews:   cloneTable(db.reviews),
		products:  cloneTable(db.products),
		audits:    cloneTable(db.audits),
		deleted:   cloneTable(db.deleted),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq = s.seq
	db.accounts, db.profiles, db.farmers, db.customers = s.accounts, s.profiles, s.farmers, s.customers
	db.codes, db.rooms, db.messages, db.reviews = s.codes, s.rooms, s.messages, s.reviews
	db.products, db.audits, db.deleted = s.products, s.audits, s.deleted
}

// withAccount attaches a copy of the owning account, like Preload("Account").
func (db *memDB) withAccount(accountID uint) *models.Account {
	return clone(db.accounts[accountID])
}

type txMarker struct{}

// memTransactor restores the pre-transaction snapshot when fn fails.
type memTransactor struct {
	db *memDB
}

func (t *memTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	snap := t.db.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// ---- accounts

type memAccountRepo struct{ db *memDB }

func (r *memAccountRepo) ByID(ctx context.Context, id uint) (*models.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.accounts[id]), nil
}

func (r *memAccountRepo) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Account
	for _, a := range rows(r.db.accounts) {
		if filter.Email != nil && a.Email != *filter.Email {
			continue
		}
		if filter.Username != nil && a.Username != *filter.Username {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memAccountRepo) Save(ctx context.Context, a *models.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("account.Save"); err != nil {
		return err
	}
	for _, other := range r.db.accounts {
		if other.ID == a.ID {
			continue
		}
		if other.Email == a.Email || other.Username == a.Username {
			return duplicate("accounts")
		}
	}
	if a.ID == 0 {
		a.ID = r.db.nextID()
		a.CreatedAt = r.db.clock.Now()
	}
	a.UpdatedAt = r.db.clock.Now()
	r.db.accounts[a.ID] = clone(a)
	return nil
}

func (r *memAccountRepo) Count(ctx context.Context, filter models.AccountFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memAccountRepo) Exists(ctx context.Context, filter models.AccountFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memAccountRepo) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.accounts {
		if strings.EqualFold(a.Email, email) {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) ByUsername(ctx context.Context, username string) (*models.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.accounts {
		if a.Username == username {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if a, ok := r.db.accounts[accountID]; ok {
		a.LastLoginAt = &at
	}
	return nil
}

func (r *memAccountRepo) UpdatePasswordHash(ctx context.Context, accountID uint, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("account.UpdatePasswordHash"); err != nil {
		return err
	}
	a, ok := r.db.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %d not found", accountID)
	}
	a.PasswordHash = hash
	a.UpdatedAt = r.db.clock.Now()
	return nil
}

// Delete cascades the way the schema's FKs do.
func (r *memAccountRepo) Delete(ctx context.Context, accountID uint) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("account.Delete"); err != nil {
		return err
	}
	db := r.db
	if _, ok := db.accounts[accountID]; !ok {
		return fmt.Errorf("account %d not found", accountID)
	}
	delete(db.accounts, accountID)

	for id, p := range db.profiles {
		if p.AccountID == accountID {
			delete(db.profiles, id)
		}
	}
	dropRooms := func(match func(*models.ChatRoom) bool) {
		for id, room := range db.rooms {
			if match(room) {
				delete(db.rooms, id)
				for mid, m := range db.messages {
					if m.ChatRoomID == id {
						delete(db.messages, mid)
					}
				}
			}
		}
	}
	for id, fp := range db.farmers {
		if fp.AccountID != accountID {
			continue
		}
		delete(db.farmers, id)
		dropRooms(func(room *models.ChatRoom) bool { return room.FarmerProfileID == id })
		for rid, rv := range db.reviews {
			if rv.FarmerProfileID == id {
				delete(db.reviews, rid)
			}
		}
		for pid, p := range db.products {
			if p.FarmerProfileID == id {
				delete(db.products, pid)
				for _, room := range db.rooms {
					if room.ProductID != nil && *room.ProductID == pid {
						room.ProductID = nil
					}
				}
			}
		}
	}
	for id, cp := range db.customers {
		if cp.AccountID != accountID {
			continue
		}
		delete(db.customers, id)
		dropRooms(func(room *models.ChatRoom) bool { return room.CustomerProfileID == id })
		for rid, rv := range db.reviews {
			if rv.CustomerProfileID == id {
				delete(db.reviews, rid)
			}
		}
	}
	for _, m := range db.messages {
		if m.AuthoredBy(accountID) {
			m.AuthorAccountID = nil
		}
	}
	for _, a := range db.audits {
		if a.AccountID != nil && *a.AccountID == accountID {
			a.AccountID = nil
		}
	}
	return nil
}

// ---- profiles

type memProfileRepo struct{ db *memDB }

func (r *memProfileRepo) ByID(ctx context.Context, id uint) (*models.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.profiles[id]), nil
}

func (r *memProfileRepo) ByFilter(ctx context.Context, filter models.ProfileFilter, orderBy string, limit, offset int) ([]*models.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Profile
	for _, p := range rows(r.db.profiles) {
		if filter.Role != nil && p.Role != *filter.Role {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memProfileRepo) Save(ctx context.Context, p *models.Profile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("profile.Save"); err != nil {
		return err
	}
	for _, other := range r.db.profiles {
		if other.ID != p.ID && other.AccountID == p.AccountID {
			return duplicate("profiles")
		}
	}
	if p.ID == 0 {
		p.ID = r.db.nextID()
		p.CreatedAt = r.db.clock.Now()
	}
	if p.IsBlocked == nil {
		p.IsBlocked = utils.ToPtr(false)
	}
	r.db.profiles[p.ID] = clone(p)
	return nil
}

func (r *memProfileRepo) Count(ctx context.Context, filter models.ProfileFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memProfileRepo) Exists(ctx context.Context, filter models.ProfileFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memProfileRepo) ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.profiles {
		if p.AccountID == accountID {
			return clone(p), nil
		}
	}
	return nil, nil
}

func (r *memProfileRepo) SetBlocked(ctx context.Context, accountID uint, blocked bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.profiles {
		if p.AccountID == accountID {
			p.IsBlocked = utils.ToPtr(blocked)
			return nil
		}
	}
	return fmt.Errorf("profile for account %d not found", accountID)
}

// ---- farmer profiles

type memFarmerRepo struct{ db *memDB }

func (r *memFarmerRepo) load(fp *models.FarmerProfile) *models.FarmerProfile {
	out := clone(fp)
	if out != nil {
		out.Account = r.db.withAccount(out.AccountID)
	}
	return out
}

func (r *memFarmerRepo) ByID(ctx context.Context, id uint) (*models.FarmerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.load(r.db.farmers[id]), nil
}

func (r *memFarmerRepo) ByFilter(ctx context.Context, filter models.FarmerProfileFilter, orderBy string, limit, offset int) ([]*models.FarmerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.FarmerProfile
	for _, fp := range rows(r.db.farmers) {
		out = append(out, r.load(fp))
	}
	return out, nil
}

func (r *memFarmerRepo) Save(ctx context.Context, fp *models.FarmerProfile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("farmer.Save"); err != nil {
		return err
	}
	if err := r.check(fp); err != nil {
		return err
	}
	if fp.ID == 0 {
		fp.ID = r.db.nextID()
		fp.CreatedAt = r.db.clock.Now()
	}
	stored := clone(fp)
	stored.Account = nil
	r.db.farmers[fp.ID] = stored
	return nil
}

func (r *memFarmerRepo) check(fp *models.FarmerProfile) error {
	for _, other := range r.db.farmers {
		if other.ID == fp.ID {
			continue
		}
		if other.AccountID == fp.AccountID {
			return duplicate("farmer_profiles")
		}
		if fp.PhoneNumber != nil && other.PhoneNumber != nil && *other.PhoneNumber == *fp.PhoneNumber {
			return duplicate("farmer_profiles phone")
		}
	}
	return nil
}

func (r *memFarmerRepo) Update(ctx context.Context, fp *models.FarmerProfile) error {
	return r.Save(ctx, fp)
}

func (r *memFarmerRepo) Count(ctx context.Context, filter models.FarmerProfileFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memFarmerRepo) Exists(ctx context.Context, filter models.FarmerProfileFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memFarmerRepo) ByAccountID(ctx context.Context, accountID uint) (*models.FarmerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, fp := range r.db.farmers {
		if fp.AccountID == accountID {
			return r.load(fp), nil
		}
	}
	return nil, nil
}

func (r *memFarmerRepo) ByPhoneNumber(ctx context.Context, phone string) (*models.FarmerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, fp := range r.db.farmers {
		if fp.PhoneNumber != nil && *fp.PhoneNumber == phone {
			return clone(fp), nil
		}
	}
	return nil, nil
}

func (r *memFarmerRepo) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.FarmerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint]*models.FarmerProfile, len(ids))
	for _, id := range ids {
		if fp, ok := r.db.farmers[id]; ok {
			out[id] = r.load(fp)
		}
	}
	return out, nil
}

// ---- customer profiles

type memCustomerRepo struct{ db *memDB }

func (r *memCustomerRepo) load(cp *models.CustomerProfile) *models.CustomerProfile {
	out := clone(cp)
	if out != nil {
		out.Account = r.db.withAccount(out.AccountID)
	}
	return out
}

func (r *memCustomerRepo) ByID(ctx context.Context, id uint) (*models.CustomerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.load(r.db.customers[id]), nil
}

func (r *memCustomerRepo) ByFilter(ctx context.Context, filter models.CustomerProfileFilter, orderBy string, limit, offset int) ([]*models.CustomerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.CustomerProfile
	for _, cp := range rows(r.db.customers) {
		out = append(out, r.load(cp))
	}
	return out, nil
}

func (r *memCustomerRepo) Save(ctx context.Context, cp *models.CustomerProfile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("customer.Save"); err != nil {
		return err
	}
	for _, other := range r.db.customers {
		if other.ID == cp.ID {
			continue
		}
		if other.AccountID == cp.AccountID {
			return duplicate("customer_profiles")
		}
		if cp.PhoneNumber != nil && other.PhoneNumber != nil && *other.PhoneNumber == *cp.PhoneNumber {
			return duplicate("customer_profiles phone")
		}
	}
	if cp.ID == 0 {
		cp.ID = r.db.nextID()
		cp.CreatedAt = r.db.clock.Now()
	}
	stored := clone(cp)
	stored.Account = nil
	r.db.customers[cp.ID] = stored
	return nil
}

func (r *memCustomerRepo) Update(ctx context.Context, cp *models.CustomerProfile) error {
	return r.Save(ctx, cp)
}

func (r *memCustomerRepo) Count(ctx context.Context, filter models.CustomerProfileFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memCustomerRepo) Exists(ctx context.Context, filter models.CustomerProfileFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memCustomerRepo) ByAccountID(ctx context.Context, accountID uint) (*models.CustomerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cp := range r.db.customers {
		if cp.AccountID == accountID {
			return r.load(cp), nil
		}
	}
	return nil, nil
}

func (r *memCustomerRepo) ByPhoneNumber(ctx context.Context, phone string) (*models.CustomerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cp := range r.db.customers {
		if cp.PhoneNumber != nil && *cp.PhoneNumber == phone {
			return clone(cp), nil
		}
	}
	return nil, nil
}

func (r *memCustomerRepo) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.CustomerProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint]*models.CustomerProfile, len(ids))
	for _, id := range ids {
		if cp, ok := r.db.customers[id]; ok {
			out[id] = r.load(cp)
		}
	}
	return out, nil
}

// ---- one-time codes

type memCodeRepo struct{ db *memDB }

func (r *memCodeRepo) ByID(ctx context.Context, id uint) (*models.OneTimeCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.codes[id]), nil
}

func (r *memCodeRepo) ByFilter(ctx context.Context, filter models.OneTimeCodeFilter, orderBy string, limit, offset int) ([]*models.OneTimeCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.OneTimeCode
	for _, c := range rows(r.db.codes) {
		if filter.Email != nil && c.Email != *filter.Email {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memCodeRepo) Save(ctx context.Context, c *models.OneTimeCode) error {
	return r.Issue(ctx, c)
}

func (r *memCodeRepo) Count(ctx context.Context, filter models.OneTimeCodeFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memCodeRepo) Exists(ctx context.Context, filter models.OneTimeCodeFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memCodeRepo) ByEmail(ctx context.Context, email string) (*models.OneTimeCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.codes {
		if c.Email == email {
			return clone(c), nil
		}
	}
	return nil, nil
}

func (r *memCodeRepo) Issue(ctx context.Context, c *models.OneTimeCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("code.Issue"); err != nil {
		return err
	}
	for id, other := range r.db.codes {
		if other.Email == c.Email {
			delete(r.db.codes, id)
		}
	}
	c.ID = r.db.nextID()
	r.db.codes[c.ID] = clone(c)
	return nil
}

func (r *memCodeRepo) DeleteByEmail(ctx context.Context, email string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, c := range r.db.codes {
		if c.Email == email {
			delete(r.db.codes, id)
		}
	}
	return nil
}

func (r *memCodeRepo) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, c := range r.db.codes {
		if c.IssuedAt.Before(cutoff) {
			delete(r.db.codes, id)
			n++
		}
	}
	return n, nil
}

// ---- chat rooms

type memRoomRepo struct{ db *memDB }

func (r *memRoomRepo) ByID(ctx context.Context, id uint) (*models.ChatRoom, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.rooms[id]), nil
}

func (r *memRoomRepo) ByFilter(ctx context.Context, filter models.ChatRoomFilter, orderBy string, limit, offset int) ([]*models.ChatRoom, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.ChatRoom
	for _, room := range rows(r.db.rooms) {
		if filter.FarmerProfileID != nil && room.FarmerProfileID != *filter.FarmerProfileID {
			continue
		}
		if filter.CustomerProfileID != nil && room.CustomerProfileID != *filter.CustomerProfileID {
			continue
		}
		if filter.State != nil && room.State() != *filter.State {
			continue
		}
		if fp, ok := r.db.farmers[room.FarmerProfileID]; ok {
			room.FarmerProfile = clone(fp)
			room.FarmerProfile.Account = r.db.withAccount(fp.AccountID)
		}
		if cp, ok := r.db.customers[room.CustomerProfileID]; ok {
			room.CustomerProfile = clone(cp)
			room.CustomerProfile.Account = r.db.withAccount(cp.AccountID)
		}
		if room.ProductID != nil {
			room.Product = clone(r.db.products[*room.ProductID])
		}
		out = append(out, room)
	}
	slices.Reverse(out)
	return out, nil
}

func (r *memRoomRepo) Save(ctx context.Context, room *models.ChatRoom) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if room.FarmerAccepted && room.FarmerRejected {
		return models.ErrInvalidChatRoomState
	}
	if room.ID == 0 {
		room.ID = r.db.nextID()
		room.CreatedAt = r.db.clock.Now()
	}
	room.UpdatedAt = r.db.clock.Now()
	r.db.rooms[room.ID] = clone(room)
	return nil
}

func (r *memRoomRepo) Count(ctx context.Context, filter models.ChatRoomFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memRoomRepo) Exists(ctx context.Context, filter models.ChatRoomFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memRoomRepo) ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.ChatRoom, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, room := range r.db.rooms {
		if room.FarmerProfileID == farmerProfileID && room.CustomerProfileID == customerProfileID {
			return clone(room), nil
		}
	}
	return nil, nil
}

func (r *memRoomRepo) GetOrCreate(ctx context.Context, room *models.ChatRoom) (*models.ChatRoom, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.rooms {
		if existing.FarmerProfileID == room.FarmerProfileID && existing.CustomerProfileID == room.CustomerProfileID {
			return clone(existing), false, nil
		}
	}
	room.ID = r.db.nextID()
	room.CreatedAt = r.db.clock.Now()
	room.UpdatedAt = room.CreatedAt
	r.db.rooms[room.ID] = clone(room)
	return room, true, nil
}

func (r *memRoomRepo) Transition(ctx context.Context, roomID uint, state models.ChatState) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	room, ok := r.db.rooms[roomID]
	if !ok {
		return false, nil
	}
	var changed bool
	switch state {
	case models.ChatStateAccepted:
		changed = room.Accept()
	case models.ChatStateRejected:
		changed = room.Reject()
	default:
		return false, fmt.Errorf("unsupported chat room transition to %q", state)
	}
	if changed {
		room.UpdatedAt = r.db.clock.Now()
	}
	return changed, nil
}

// ---- messages

type memMessageRepo struct{ db *memDB }

func (r *memMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.messages[id]), nil
}

func (r *memMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Message
	for _, m := range rows(r.db.messages) {
		if filter.ChatRoomID != nil && m.ChatRoomID != *filter.ChatRoomID {
			continue
		}
		if filter.Kind != nil && m.Kind != *filter.Kind {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memMessageRepo) Save(ctx context.Context, m *models.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("message.Save"); err != nil {
		return err
	}
	if _, ok := r.db.rooms[m.ChatRoomID]; !ok {
		return fmt.Errorf("chat room %d does not exist", m.ChatRoomID)
	}
	if m.ID == 0 {
		m.ID = r.db.nextID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.db.clock.Now()
	}
	stored := clone(m)
	stored.Author = nil
	r.db.messages[m.ID] = stored
	return nil
}

func (r *memMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memMessageRepo) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memMessageRepo) ListByRoom(ctx context.Context, roomID uint) ([]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Message
	for _, m := range rows(r.db.messages) {
		if m.ChatRoomID != roomID {
			continue
		}
		if m.AuthorAccountID != nil {
			m.Author = r.db.withAccount(*m.AuthorAccountID)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memMessageRepo) LatestByRooms(ctx context.Context, roomIDs []uint) (map[uint]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint]*models.Message)
	for _, m := range rows(r.db.messages) {
		if !slices.Contains(roomIDs, m.ChatRoomID) {
			continue
		}
		if prev, ok := out[m.ChatRoomID]; !ok || !m.CreatedAt.Before(prev.CreatedAt) {
			out[m.ChatRoomID] = m
		}
	}
	return out, nil
}

// ---- reviews

type memReviewRepo struct{ db *memDB }

func (r *memReviewRepo) ByID(ctx context.Context, id uint) (*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.reviews[id]), nil
}

func (r *memReviewRepo) ByFilter(ctx context.Context, filter models.ReviewFilter, orderBy string, limit, offset int) ([]*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Review
	for _, rv := range rows(r.db.reviews) {
		if filter.FarmerProfileID != nil && rv.FarmerProfileID != *filter.FarmerProfileID {
			continue
		}
		if cp, ok := r.db.customers[rv.CustomerProfileID]; ok {
			rv.CustomerProfile = clone(cp)
			rv.CustomerProfile.Account = r.db.withAccount(cp.AccountID)
		}
		out = append(out, rv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FarmerProfileID != out[j].FarmerProfileID && filter.FarmerProfileID == nil {
			return out[i].FarmerProfileID < out[j].FarmerProfileID
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memReviewRepo) Save(ctx context.Context, rv *models.Review) error {
	return r.Upsert(ctx, rv)
}

func (r *memReviewRepo) Count(ctx context.Context, filter models.ReviewFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memReviewRepo) Exists(ctx context.Context, filter models.ReviewFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memReviewRepo) ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rv := range r.db.reviews {
		if rv.FarmerProfileID == farmerProfileID && rv.CustomerProfileID == customerProfileID {
			return clone(rv), nil
		}
	}
	return nil, nil
}

func (r *memReviewRepo) Upsert(ctx context.Context, rv *models.Review) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.reviews {
		if existing.FarmerProfileID == rv.FarmerProfileID && existing.CustomerProfileID == rv.CustomerProfileID {
			existing.Rating = rv.Rating
			existing.Comment = rv.Comment
			existing.UpdatedAt = rv.UpdatedAt
			return nil
		}
	}
	rv.ID = r.db.nextID()
	stored := clone(rv)
	stored.CustomerProfile = nil
	r.db.reviews[rv.ID] = stored
	return nil
}

func (r *memReviewRepo) summarise(farmerProfileID uint) *models.RatingSummary {
	s := &models.RatingSummary{FarmerProfileID: farmerProfileID}
	total := 0
	for _, rv := range r.db.reviews {
		if rv.FarmerProfileID == farmerProfileID {
			total += rv.Rating
			s.Count++
		}
	}
	if s.Count > 0 {
		s.Average = float64(total) / float64(s.Count)
	}
	return s
}

func (r *memReviewRepo) SummaryForFarmer(ctx context.Context, farmerProfileID uint) (*models.RatingSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.summarise(farmerProfileID), nil
}

func (r *memReviewRepo) SummariesForFarmers(ctx context.Context, farmerProfileIDs []uint) (map[uint]*models.RatingSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint]*models.RatingSummary)
	for _, id := range farmerProfileIDs {
		if s := r.summarise(id); s.Count > 0 {
			out[id] = s
		}
	}
	return out, nil
}

// ---- products

type memProductRepo struct{ db *memDB }

func (r *memProductRepo) load(p *models.Product) *models.Product {
	out := clone(p)
	if out == nil {
		return nil
	}
	if fp, ok := r.db.farmers[out.FarmerProfileID]; ok {
		out.FarmerProfile = clone(fp)
		out.FarmerProfile.Account = r.db.withAccount(fp.AccountID)
	}
	return out
}

func (r *memProductRepo) ByID(ctx context.Context, id uint) (*models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.load(r.db.products[id]), nil
}

func (r *memProductRepo) ByFilter(ctx context.Context, filter models.ProductFilter, orderBy string, limit, offset int) ([]*models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Product
	for _, p := range rows(r.db.products) {
		if filter.FarmerProfileID != nil && p.FarmerProfileID != *filter.FarmerProfileID {
			continue
		}
		out = append(out, r.load(p))
	}
	slices.Reverse(out)
	return out, nil
}

func (r *memProductRepo) Save(ctx context.Context, p *models.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.farmers[p.FarmerProfileID]; !ok {
		return fmt.Errorf("farmer profile %d does not exist", p.FarmerProfileID)
	}
	if p.ID == 0 {
		p.ID = r.db.nextID()
	}
	stored := clone(p)
	stored.FarmerProfile = nil
	r.db.products[p.ID] = stored
	return nil
}

func (r *memProductRepo) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memProductRepo) Exists(ctx context.Context, filter models.ProductFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memProductRepo) Search(ctx context.Context, c models.ProductSearch) ([]*models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(c.Query))
	var out []*models.Product
	for _, p := range rows(r.db.products) {
		if q != "" {
			match := strings.Contains(strings.ToLower(p.SubCategory), q)
			for _, s := range p.Synonyms {
				match = match || strings.Contains(strings.ToLower(s), q)
			}
			if !match {
				continue
			}
		}
		if c.MinPrice != nil && p.Price < *c.MinPrice || c.MaxPrice != nil && p.Price > *c.MaxPrice {
			continue
		}
		if c.MinQuantity != nil && p.Quantity < *c.MinQuantity || c.MaxQuantity != nil && p.Quantity > *c.MaxQuantity {
			continue
		}
		if c.PostedAfter != nil && p.DatePosted.Before(*c.PostedAfter) || c.PostedBefore != nil && p.DatePosted.After(*c.PostedBefore) {
			continue
		}
		out = append(out, r.load(p))
	}
	slices.Reverse(out)
	return out, nil
}

// ---- audit log

type memAuditRepo struct{ db *memDB }

func (r *memAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.audits[id]), nil
}

func (r *memAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.AuditLog
	for _, a := range rows(r.db.audits) {
		if filter.Action != nil && a.Action != *filter.Action {
			continue
		}
		if filter.AccountID != nil && (a.AccountID == nil || *a.AccountID != *filter.AccountID) {
			continue
		}
		if filter.Success != nil && utils.IsTrue(a.Success) != *filter.Success {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memAuditRepo) Save(ctx context.Context, a *models.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a.ID = r.db.nextID()
	a.CreatedAt = r.db.clock.Now()
	r.db.audits[a.ID] = clone(a)
	return nil
}

func (r *memAuditRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memAuditRepo) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *memAuditRepo) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{AccountID: &accountID}, "", limit, offset)
}

func (r *memAuditRepo) ListSecurityEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	all, _ := r.ByFilter(ctx, models.AuditLogFilter{}, "", 0, 0)
	var out []*models.AuditLog
	for _, a := range all {
		if a.IsSecurityEvent() {
			out = append(out, a)
		}
	}
	return out, nil
}

// ---- deleted accounts

type memDeletedRepo struct{ db *memDB }

func (r *memDeletedRepo) ByID(ctx context.Context, id uint) (*models.DeletedAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return clone(r.db.deleted[id]), nil
}

func (r *memDeletedRepo) ByFilter(ctx context.Context, filter models.DeletedAccountFilter, orderBy string, limit, offset int) ([]*models.DeletedAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.DeletedAccount
	for _, d := range rows(r.db.deleted) {
		if filter.AccountID != nil && d.AccountID != *filter.AccountID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *memDeletedRepo) Save(ctx context.Context, d *models.DeletedAccount) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("deleted.Save"); err != nil {
		return err
	}
	d.ID = r.db.nextID()
	r.db.deleted[d.ID] = clone(d)
	return nil
}

func (r *memDeletedRepo) Count(ctx context.Context, filter models.DeletedAccountFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *memDeletedRepo) Exists(ctx context.Context, filter models.DeletedAccountFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

var (
	_ repository.AccountRepository         = (*memAccountRepo)(nil)
	_ repository.ProfileRepository         = (*memProfileRepo)(nil)
	_ repository.FarmerProfileRepository   = (*memFarmerRepo)(nil)
	_ repository.CustomerProfileRepository = (*memCustomerRepo)(nil)
	_ repository.OneTimeCodeRepository     = (*memCodeRepo)(nil)
	_ repository.ChatRoomRepository        = (*memRoomRepo)(nil)
	_ repository.MessageRepository         = (*memMessageRepo)(nil)
	_ repository.ReviewRepository          = (*memReviewRepo)(nil)
	_ repository.ProductRepository         = (*memProductRepo)(nil)
	_ repository.AuditLogRepository        = (*memAuditRepo)(nil)
	_ repository.DeletedAccountRepository  = (*memDeletedRepo)(nil)
	_ repository.Transactor                = (*memTransactor)(nil)
)

// testEnv wires every flow against one memDB.
type testEnv struct {
	db      *memDB
	clock   *utils.ManualClock
	sender  *services.MockEmailSender
	pending *services.MemoryPendingSignupStore
	hub     *realtime.Hub
	tokens  services.TokenService

	accounts  *memAccountRepo
	profiles  *memProfileRepo
	farmers   *memFarmerRepo
	customers *memCustomerRepo
	codes     *memCodeRepo
	rooms     *memRoomRepo
	messages  *memMessageRepo
	reviews   *memReviewRepo
	products  *memProductRepo
	audits    *memAuditRepo
	deleted   *memDeletedRepo

	otp     *scriptedCodes
	signup  SignupFlow
	profile ProfileFlow
	login   LoginFlow
	chat    ChatFlow
	review  ReviewFlow
	product ProductFlow
}

var testStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// scriptedCodes hands out queued codes first, then random ones.
type scriptedCodes struct {
	mu    sync.Mutex
	queue []string
}

func (s *scriptedCodes) next(codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, codes...)
}

func (s *scriptedCodes) generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return GenerateOTP()
	}
	code := s.queue[0]
	s.queue = s.queue[1:]
	return code, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := utils.NewManualClock(testStart)
	db := newMemDB(clock)
	tx := &memTransactor{db: db}
	e := &testEnv{
		db:        db,
		clock:     clock,
		sender:    services.NewMockEmailSender(),
		pending:   services.NewMemoryPendingSignupStore(clock),
		hub:       realtime.NewHub(8),
		accounts:  &memAccountRepo{db},
		profiles:  &memProfileRepo{db},
		farmers:   &memFarmerRepo{db},
		customers: &memCustomerRepo{db},
		codes:     &memCodeRepo{db},
		rooms:     &memRoomRepo{db},
		messages:  &memMessageRepo{db},
		reviews:   &memReviewRepo{db},
		products:  &memProductRepo{db},
		audits:    &memAuditRepo{db},
		deleted:   &memDeletedRepo{db},
	}

	tokens, err := services.NewTokenService(time.Hour, 24*time.Hour, "kisaan-test", "kisaan-test", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)
	e.tokens = tokens

	e.otp = &scriptedCodes{}
	e.signup = NewSignupFlow(e.accounts, e.profiles, e.farmers, e.customers, e.codes, e.audits,
		e.pending, services.NewNotificationService(e.sender, "Kisaan"), tx, clock,
		SignupConfig{
			AllowedEmailDomains: []string{"gmail.com", "yahoo.com", "outlook.com"},
			BcryptCost:          bcrypt.MinCost,
			GenerateCode:        e.otp.generate,
		})
	e.profile = NewProfileFlow(e.accounts, e.profiles, e.farmers, e.customers, e.deleted, e.audits, tx, clock)
	e.login = NewLoginFlow(e.accounts, e.profiles, e.audits, e.profile, tokens,
		services.NewNotificationService(e.sender, "Kisaan"),
		LoginConfig{AccessTokenTTL: time.Hour, PasswordResetTTL: 30 * time.Minute, BcryptCost: bcrypt.MinCost}, clock)
	e.chat = NewChatFlow(e.accounts, e.profiles, e.farmers, e.customers, e.rooms, e.messages, e.products,
		e.reviews, e.audits, realtime.NewLocalPublisher(e.hub), tx, clock)
	e.review = NewReviewFlow(e.accounts, e.profiles, e.farmers, e.customers, e.reviews, e.audits, clock)
	e.product = NewProductFlow(e.accounts, e.profiles, e.farmers, e.customers, e.products, e.reviews, e.audits, clock)
	return e
}

func (e *testEnv) newAccount(t *testing.T, username, first, last, password string, role models.Role) *models.Account {
	t.Helper()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	account := &models.Account{
		UUID:         uuid.New(),
		Username:     username,
		Email:        username + "@gmail.com",
		FirstName:    first,
		LastName:     last,
		PasswordHash: string(hash),
		IsActive:     utils.ToPtr(true),
	}
	require.NoError(t, e.accounts.Save(ctx, account))
	require.NoError(t, e.profiles.Save(ctx, &models.Profile{AccountID: account.ID, Role: role}))
	return account
}

// farmer creates a farmer at the given coordinates; nil coordinates leave them unknown.
func (e *testEnv) farmer(t *testing.T, username, first string, lat, lon *float64) (*models.Account, *models.FarmerProfile) {
	t.Helper()
	account := e.newAccount(t, username, first, "Farmer", "password123", models.RoleFarmer)
	fp := &models.FarmerProfile{
		AccountID:   account.ID,
		PhoneNumber: utils.ToPtr(fmt.Sprintf("98%08d", account.ID)),
		Location:    models.Location{Ward: "Ward 1", Address: utils.DefaultAddress, Latitude: lat, Longitude: lon},
	}
	require.NoError(t, e.farmers.Save(context.Background(), fp))
	fp.Account = account
	return account, fp
}

func (e *testEnv) customer(t *testing.T, username, first string, lat, lon *float64) (*models.Account, *models.CustomerProfile) {
	t.Helper()
	account := e.newAccount(t, username, first, "Customer", "password123", models.RoleCustomer)
	cp := &models.CustomerProfile{
		AccountID:   account.ID,
		PhoneNumber: utils.ToPtr(fmt.Sprintf("97%08d", account.ID)),
		Location:    models.Location{Ward: "Ward 2", Address: utils.DefaultAddress, Latitude: lat, Longitude: lon},
	}
	require.NoError(t, e.customers.Save(context.Background(), cp))
	cp.Account = account
	return account, cp
}

func (e *testEnv) admin(t *testing.T, username string) *models.Account {
	t.Helper()
	return e.newAccount(t, username, "Site", "Admin", "password123", models.RoleAdmin)
}

func (e *testEnv) listProduct(t *testing.T, farmer *models.FarmerProfile, sub string, price, qty float64, synonyms ...string) *models.Product {
	t.Helper()
	p := &models.Product{
		FarmerProfileID: farmer.ID,
		MainCategory:    "Vegetables",
		SubCategory:     sub,
		Quantity:        qty,
		Unit:            "kg",
		Price:           price,
		Synonyms:        synonyms,
		DatePosted:      e.clock.Now(),
	}
	require.NoError(t, e.products.Save(context.Background(), p))
	return p
}

func (e *testEnv) auditCount(action string) int {
	out, _ := e.audits.ByFilter(context.Background(), models.AuditLogFilter{Action: &action}, "", 0, 0)
	return len(out)
}
