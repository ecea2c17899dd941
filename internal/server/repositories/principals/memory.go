package principals

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
)

// MemoryRepository keeps principals in process memory. All checks and writes
// happen under one mutex, which gives the same guarantees as the SQL indexes.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.Principal
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*models.Principal{}}
}

func clone(p *models.Principal) *models.Principal {
	c := *p
	c.Credential.Salt = append([]byte(nil), p.Credential.Salt...)
	if p.LockedUntil != nil {
		t := *p.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func (r *MemoryRepository) findLocked(login string) *models.Principal {
	for _, p := range r.byID {
		if p.Login == login {
			return p
		}
	}
	return nil
}

func (r *MemoryRepository) holderLocked(territory models.Territory, exceptLogin string) *models.Principal {
	for _, p := range r.byID {
		if p.Territory == territory && p.Role.Privileged() && p.Login != exceptLogin {
			return p
		}
	}
	return nil
}

func conflictWith(holder *models.Principal) error {
	return &common.GovernanceConflictError{
		Territory: string(holder.Territory),
		Login:     holder.Login,
		Role:      string(holder.Role),
	}
}

func (r *MemoryRepository) FindByLogin(_ context.Context, login string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.findLocked(login); p != nil {
		return clone(p), nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) FindByName(_ context.Context, givenName, familyName string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Principal
	for _, p := range r.byID {
		if !strings.EqualFold(p.GivenName, givenName) || !strings.EqualFold(p.FamilyName, familyName) {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return clone(found), nil
}

func (r *MemoryRepository) PrivilegedInTerritory(_ context.Context, territory models.Territory) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.holderLocked(territory, ""); p != nil {
		return clone(p), nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Insert(_ context.Context, p *models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(p.Login) != nil {
		return common.ErrDuplicateLogin
	}
	if p.Role.Privileged() {
		if holder := r.holderLocked(p.Territory, ""); holder != nil {
			return conflictWith(holder)
		}
	}
	r.byID[p.ID] = clone(p)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, login string, patch models.PrincipalPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.findLocked(login)
	if current == nil {
		return false, nil
	}

	next := clone(current)
	patch.Apply(next)
	if next.Role.Privileged() {
		if holder := r.holderLocked(next.Territory, login); holder != nil {
			return false, conflictWith(holder)
		}
	}
	r.byID[next.ID] = next
	return true, nil
}

func (r *MemoryRepository) ExtendLock(_ context.Context, login string, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(login)
	if p == nil {
		return false, nil
	}
	if p.LockedUntil != nil && !p.LockedUntil.Before(until) {
		return false, nil
	}
	u := until.UTC()
	p.LockedUntil = &u
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, login string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(login)
	if p == nil {
		return false, nil
	}
	delete(r.byID, p.ID)
	return true, nil
}

func (r *MemoryRepository) LoginExists(_ context.Context, login string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(login) != nil, nil
}

func (r *MemoryRepository) List(_ context.Context, filter models.ListFilter) ([]models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Principal
	for _, p := range r.byID {
		if filter.Territory != "" && p.Territory != filter.Territory {
			continue
		}
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		result = append(result, *clone(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Login < result[j].Login })
	return result, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *MemoryRepository) Rename(_ context.Context, oldLogin, newLogin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(oldLogin)
	if p == nil {
		return common.ErrorNotFound
	}
	if oldLogin != newLogin && r.findLocked(newLogin) != nil {
		return common.ErrDuplicateLogin
	}
	p.Login = newLogin
	return nil
}
