package token

import (
	"context"
	"fmt"
	"math"
	"sync"

	"FlowCash/model"
)

type allowanceKey struct {
	owner, spender string
}

// Memory is a process-local token. All operations are serialized by one mutex.
type Memory struct {
	mu         sync.Mutex
	symbol     string
	supply     model.Amount
	balances   map[string]model.Amount
	allowances map[allowanceKey]model.Amount
}

// NewMemory creates an empty in-memory token.
func NewMemory(symbol string) *Memory {
	return &Memory{
		symbol:     symbol,
		balances:   make(map[string]model.Amount),
		allowances: make(map[allowanceKey]model.Amount),
	}
}

func (m *Memory) Info() Info {
	return Info{Symbol: m.symbol, Decimals: model.AmountDecimals}
}

func (m *Memory) BalanceOf(_ context.Context, owner string) (model.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner], nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender string) (model.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{owner, spender}], nil
}

func (m *Memory) Approve(_ context.Context, owner, spender string, amount model.Amount) error {
	if err := checkAccounts(owner, spender); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

func (m *Memory) TransferFrom(_ context.Context, spender, owner, recipient string, amount model.Amount) error {
	if err := checkAccounts(spender, owner, recipient); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := allowanceKey{owner, spender}
	if m.allowances[key] < amount {
		return fmt.Errorf("%w: %s approved %s for %s, need %s",
			ErrInsufficientAllowance, owner, m.allowances[key], spender, amount)
	}
	if err := m.move(owner, recipient, amount); err != nil {
		return err
	}
	m.allowances[key] -= amount
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to string, amount model.Amount) error {
	if err := checkAccounts(from, to); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(from, to, amount)
}

func (m *Memory) Refund(_ context.Context, spender, holder, owner string, amount model.Amount) error {
	if err := checkAccounts(spender, holder, owner); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.move(holder, owner, amount); err != nil {
		return err
	}
	key := allowanceKey{owner, spender}
	if m.allowances[key] > math.MaxUint64-amount {
		m.allowances[key] = math.MaxUint64
	} else {
		m.allowances[key] += amount
	}
	return nil
}

// Mint 增发代币到指定账户
func (m *Memory) Mint(_ context.Context, to string, amount model.Amount) error {
	if err := checkAccounts(to); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.supply > math.MaxUint64-amount {
		return fmt.Errorf("%w: supply overflow", ErrInvalidAmount)
	}
	m.supply += amount
	m.balances[to] += amount
	return nil
}

// move requires m.mu held. Supply bounds every balance, so the credit cannot overflow.
func (m *Memory) move(from, to string, amount model.Amount) error {
	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from, m.balances[from], amount)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}
