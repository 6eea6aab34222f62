package mockapi

import (
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-school-session/users"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is a user as the backend stores it
type Account struct {
	users.Profile
	PasswordHash string
}

type AccountRepo interface {
	Upsert(account *Account) error
	GetByEmail(email string) (*Account, error)
	GetByID(id int64) (*Account, error)
	List() ([]*Account, error)
	SetVerified(email string, verified bool) error
	SetStatus(email, status string) error
	SetPasswordHash(email, hash string) error
}

var _ AccountRepo = (*memAccountRepo)(nil)

type memAccountRepo struct {
	accounts map[int64]*Account
	emailIDs map[string]int64 // normalized email to account id
	nextID   int64
	lock     sync.RWMutex
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{
		accounts: make(map[int64]*Account),
		emailIDs: make(map[string]int64),
	}
}

func (ar *memAccountRepo) Upsert(account *Account) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	account.Email = users.NormalizeEmail(account.Email)
	if account.ID == 0 {
		if id, ok := ar.emailIDs[account.Email]; ok {
			account.ID = id
		} else {
			ar.nextID++
			account.ID = ar.nextID
		}
	}
	copied := *account
	ar.accounts[account.ID] = &copied
	ar.emailIDs[account.Email] = account.ID
	return nil
}

func (ar *memAccountRepo) GetByEmail(email string) (*Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.emailIDs[users.NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *ar.accounts[id]
	return &copied, nil
}

func (ar *memAccountRepo) GetByID(id int64) (*Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	account, ok := ar.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (ar *memAccountRepo) List() ([]*Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	list := make([]*Account, 0, len(ar.accounts))
	for _, v := range ar.accounts {
		copied := *v
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (ar *memAccountRepo) update(email string, fn func(*Account)) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	id, ok := ar.emailIDs[users.NormalizeEmail(email)]
	if !ok {
		return ErrAccountNotFound
	}
	fn(ar.accounts[id])
	return nil
}

func (ar *memAccountRepo) SetVerified(email string, verified bool) error {
	return ar.update(email, func(a *Account) { a.EmailVerified = verified })
}

func (ar *memAccountRepo) SetStatus(email, status string) error {
	return ar.update(email, func(a *Account) { a.Status = status })
}

func (ar *memAccountRepo) SetPasswordHash(email, hash string) error {
	return ar.update(email, func(a *Account) { a.PasswordHash = hash })
}
