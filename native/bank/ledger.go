// Package bank implements the token primitives the protocol engines call into:
// minting, burning and transferring fungible balances plus ownership of
// collection token ids.
package bank

import (
	"errors"
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
)

var errNilState = errors.New("bank: state not configured")

type ledgerState interface {
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	SetBalance(addr crypto.Address, symbol string, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
	NFTOwner(symbol string, id *big.Int) (crypto.Address, bool, error)
	SetNFTOwner(symbol string, id *big.Int, owner crypto.Address) error
	NFTCount(addr crypto.Address, symbol string) (uint64, error)
}

// Ledger is the shared bank used by every engine.
type Ledger struct {
	state ledgerState
}

// NewLedger binds the bank to a state backend.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{state: st}
}

func (l *Ledger) fungible(symbol string) (*state.TokenMetadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.state.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("bank: token %s: %w", state.NormalizeSymbol(symbol), coreerrors.ErrNotAccepted)
	}
	if meta.NonFungible {
		return nil, fmt.Errorf("bank: %s is a collection", meta.Symbol)
	}
	return meta, nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: %w", coreerrors.ErrInvalidAmount)
	}
	return nil
}

// Decimals returns the precision of a registered token.
func (l *Ledger) Decimals(symbol string) (uint8, error) {
	meta, err := l.fungible(symbol)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// Balance returns addr's balance of symbol.
func (l *Ledger) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	if _, err := l.fungible(symbol); err != nil {
		return nil, err
	}
	return l.state.Balance(addr, symbol)
}

// TotalSupply returns the circulating supply recorded for symbol.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	if _, err := l.fungible(symbol); err != nil {
		return nil, err
	}
	return l.state.TokenSupply(symbol)
}

// Mint credits amount of symbol to to and grows supply.
func (l *Ledger) Mint(to crypto.Address, symbol string, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("bank: mint: %w", coreerrors.ErrInvalidAddress)
	}
	if _, err := l.fungible(symbol); err != nil {
		return err
	}
	balance, err := l.state.Balance(to, symbol)
	if err != nil {
		return err
	}
	if _, err := l.state.AdjustTokenSupply(symbol, amount); err != nil {
		return err
	}
	return l.state.SetBalance(to, symbol, new(big.Int).Add(balance, amount))
}

// Burn debits amount of symbol from from and shrinks supply.
func (l *Ledger) Burn(from crypto.Address, symbol string, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if _, err := l.fungible(symbol); err != nil {
		return err
	}
	balance, err := l.state.Balance(from, symbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: burn %s: %w", state.NormalizeSymbol(symbol), coreerrors.ErrInsufficientBalance)
	}
	if _, err := l.state.AdjustTokenSupply(symbol, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return l.state.SetBalance(from, symbol, new(big.Int).Sub(balance, amount))
}

// Transfer moves amount of symbol between accounts.
func (l *Ledger) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("bank: transfer: %w", coreerrors.ErrInvalidAddress)
	}
	if _, err := l.fungible(symbol); err != nil {
		return err
	}
	fromBalance, err := l.state.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: transfer %s: %w", state.NormalizeSymbol(symbol), coreerrors.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.state.Balance(to, symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from, symbol, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.SetBalance(to, symbol, new(big.Int).Add(toBalance, amount))
}
