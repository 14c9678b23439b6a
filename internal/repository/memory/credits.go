package memory

import (
	"context"
	"sync"

	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

type account struct {
	balance    int
	allocation int
}

// Credits is a CreditReader backed by a map. Unknown owners have nothing.
type Credits struct {
	mu       sync.RWMutex
	accounts map[int64]account
}

var _ repository.CreditReader = (*Credits)(nil)

func NewCredits() *Credits {
	return &Credits{accounts: make(map[int64]account)}
}

func (c *Credits) Set(ownerID int64, balance, monthlyAllocation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[ownerID] = account{balance: balance, allocation: monthlyAllocation}
}

func (c *Credits) Balance(_ context.Context, ownerID int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accounts[ownerID].balance, nil
}

func (c *Credits) MonthlyAllocation(_ context.Context, ownerID int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accounts[ownerID].allocation, nil
}
