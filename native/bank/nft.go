package bank

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
)

func (l *Ledger) collection(symbol string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	meta, err := l.state.Token(symbol)
	if err != nil {
		return err
	}
	if meta == nil || !meta.NonFungible {
		return fmt.Errorf("bank: collection %s: %w", state.NormalizeSymbol(symbol), coreerrors.ErrNotAccepted)
	}
	return nil
}

// MintNFT creates token id of the collection owned by to.
func (l *Ledger) MintNFT(symbol string, id *big.Int, to crypto.Address) error {
	if err := l.collection(symbol); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("bank: mint nft: %w", coreerrors.ErrInvalidAddress)
	}
	_, minted, err := l.state.NFTOwner(symbol, id)
	if err != nil {
		return err
	}
	if minted {
		return fmt.Errorf("bank: %s #%s already minted", state.NormalizeSymbol(symbol), id)
	}
	return l.state.SetNFTOwner(symbol, id, to)
}

// OwnerOf returns the holder of id.
func (l *Ledger) OwnerOf(symbol string, id *big.Int) (crypto.Address, error) {
	if err := l.collection(symbol); err != nil {
		return crypto.Address{}, err
	}
	owner, minted, err := l.state.NFTOwner(symbol, id)
	if err != nil {
		return crypto.Address{}, err
	}
	if !minted {
		return crypto.Address{}, fmt.Errorf("bank: %s #%s: %w", state.NormalizeSymbol(symbol), id, coreerrors.ErrInvalidAmount)
	}
	return owner, nil
}

// TransferNFT moves id from from to to. from must currently own it.
func (l *Ledger) TransferNFT(symbol string, id *big.Int, from, to crypto.Address) error {
	if to.IsZero() {
		return fmt.Errorf("bank: transfer nft: %w", coreerrors.ErrInvalidAddress)
	}
	owner, err := l.OwnerOf(symbol, id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("bank: %s #%s not owned by sender: %w", state.NormalizeSymbol(symbol), id, coreerrors.ErrUnauthorized)
	}
	return l.state.SetNFTOwner(symbol, id, to)
}

// NFTBalance returns how many ids of the collection addr holds.
func (l *Ledger) NFTBalance(addr crypto.Address, symbol string) (uint64, error) {
	if err := l.collection(symbol); err != nil {
		return 0, err
	}
	return l.state.NFTCount(addr, symbol)
}
