// Package token 支付代币提供方：余额、授权额度、拉取式转账与推送式转账。
// 金额单位与账本一致（6 位小数定点数）。
package token

import (
	"context"
	"errors"

	"FlowCash/model"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidAccount        = errors.New("invalid account")
)

// Provider is the payment token the ledger settles in.
type Provider interface {
	BalanceOf(ctx context.Context, owner string) (model.Amount, error)
	Allowance(ctx context.Context, owner, spender string) (model.Amount, error)
	// Approve sets (not adds to) the amount spender may pull from owner.
	Approve(ctx context.Context, owner, spender string, amount model.Amount) error
	// TransferFrom pulls amount from owner to recipient, consuming spender's allowance.
	TransferFrom(ctx context.Context, spender, owner, recipient string, amount model.Amount) error
	// Transfer pushes amount from the from account's own balance.
	Transfer(ctx context.Context, from, to string, amount model.Amount) error
	// Refund undoes a TransferFrom: amount moves from holder back to owner
	// and owner's allowance for spender grows by the same amount, atomically.
	Refund(ctx context.Context, spender, holder, owner string, amount model.Amount) error
}

// Minter credits new supply to an account; used for seeding dev balances.
type Minter interface {
	Mint(ctx context.Context, to string, amount model.Amount) error
}

// Info describes the token for API consumers.
type Info struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Token is a provider that can also mint.
type Token interface {
	Provider
	Minter
	Info() Info
}

func checkAccounts(accounts ...string) error {
	for _, a := range accounts {
		if a == "" {
			return ErrInvalidAccount
		}
	}
	return nil
}
