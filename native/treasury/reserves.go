package treasury

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
)

func heldKey(collection string, id *big.Int) []byte {
	return []byte("treasury/held/" + collection + "/" + id.String())
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("treasury: %w", coreerrors.ErrInvalidAmount)
	}
	return nil
}

// checkBacking enforces totalReserves - Σ debt ≥ 0.
func (e *Engine) checkBacking(ledger *Ledger) error {
	excess, err := e.excess(ledger)
	if err != nil {
		return err
	}
	if excess.Sign() < 0 {
		return fmt.Errorf("treasury: backing short by %s: %w", new(big.Int).Neg(excess), coreerrors.ErrInsufficientReserves)
	}
	return nil
}

// Deposit pulls amount of asset from caller into reserves and mints the
// deposit's payout-token value minus profit back to caller. The returned
// amount is what was minted.
func (e *Engine) Deposit(caller crypto.Address, asset string, amount, profit *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	if profit == nil {
		profit = big.NewInt(0)
	}
	if profit.Sign() < 0 {
		return nil, fmt.Errorf("treasury: profit: %w", coreerrors.ErrInvalidAmount)
	}
	asset = state.NormalizeSymbol(asset)
	switch {
	case e.IsReserveToken(asset):
		if !e.IsReserveDepositor(caller) {
			return nil, fmt.Errorf("treasury: deposit %s: %w", asset, coreerrors.ErrNotApproved)
		}
	case e.IsLiquidityToken(asset):
		if !e.IsLiquidityDepositor(caller) {
			return nil, fmt.Errorf("treasury: deposit %s: %w", asset, coreerrors.ErrNotApproved)
		}
	default:
		return nil, fmt.Errorf("treasury: deposit %s: %w", asset, coreerrors.ErrNotAccepted)
	}

	value, err := e.valueOf(ledger, asset, amount)
	if err != nil {
		return nil, err
	}
	if profit.Cmp(value) > 0 {
		return nil, fmt.Errorf("treasury: profit exceeds deposit value: %w", coreerrors.ErrInvalidAmount)
	}
	send := new(big.Int).Sub(value, profit)
	ledger.TotalReserves.Add(ledger.TotalReserves, value)
	if err := e.storeLedger(ledger); err != nil {
		return nil, err
	}

	if err := e.bank.Transfer(caller, e.cfg.Account, asset, amount); err != nil {
		return nil, err
	}
	if send.Sign() > 0 {
		if err := e.bank.Mint(caller, e.cfg.PayoutToken, send); err != nil {
			return nil, err
		}
	}
	e.emit(events.ReserveDeposited{Asset: asset, Caller: caller, Amount: amount, Value: value})
	e.emit(events.ReservesUpdated{Total: ledger.TotalReserves})
	return send, nil
}

// DepositNFT takes custody of one collection token id. The id becomes
// releasable through ManageNFT.
func (e *Engine) DepositNFT(caller crypto.Address, collection string, id, profit *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("treasury: token id: %w", coreerrors.ErrInvalidAmount)
	}
	if profit == nil {
		profit = big.NewInt(0)
	}
	collection = state.NormalizeSymbol(collection)
	if !e.IsSupportedCollection(collection) {
		return nil, fmt.Errorf("treasury: deposit %s: %w", collection, coreerrors.ErrNotAccepted)
	}
	if !e.IsCollateralDepositor(caller) {
		return nil, fmt.Errorf("treasury: deposit %s: %w", collection, coreerrors.ErrNotApproved)
	}
	value, err := e.valueOf(ledger, collection, big.NewInt(1))
	if err != nil {
		return nil, err
	}
	if profit.Sign() < 0 || profit.Cmp(value) > 0 {
		return nil, fmt.Errorf("treasury: profit exceeds deposit value: %w", coreerrors.ErrInvalidAmount)
	}
	send := new(big.Int).Sub(value, profit)
	ledger.TotalReserves.Add(ledger.TotalReserves, value)
	if err := e.storeLedger(ledger); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(heldKey(collection, id), true); err != nil {
		return nil, err
	}

	if err := e.bank.TransferNFT(collection, id, caller, e.cfg.Account); err != nil {
		return nil, err
	}
	if send.Sign() > 0 {
		if err := e.bank.Mint(caller, e.cfg.PayoutToken, send); err != nil {
			return nil, err
		}
	}
	e.emit(events.ReserveDeposited{Asset: collection, Caller: caller, Amount: big.NewInt(1), Value: value})
	e.emit(events.ReservesUpdated{Total: ledger.TotalReserves})
	return send, nil
}

// Withdraw releases amount of a reserve token to a spender, burning the
// equivalent payout-token value from the spender.
func (e *Engine) Withdraw(caller crypto.Address, asset string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	asset = state.NormalizeSymbol(asset)
	if !e.IsReserveToken(asset) {
		return fmt.Errorf("treasury: withdraw %s: %w", asset, coreerrors.ErrNotAccepted)
	}
	if !e.IsReserveSpender(caller) {
		return fmt.Errorf("treasury: withdraw %s: %w", asset, coreerrors.ErrNotApproved)
	}
	value, err := e.valueOf(ledger, asset, amount)
	if err != nil {
		return err
	}
	if value.Cmp(ledger.TotalReserves) > 0 {
		return fmt.Errorf("treasury: withdraw %s: %w", asset, coreerrors.ErrInsufficientReserves)
	}
	ledger.TotalReserves.Sub(ledger.TotalReserves, value)
	if err := e.checkBacking(ledger); err != nil {
		return err
	}
	if err := e.storeLedger(ledger); err != nil {
		return err
	}

	if value.Sign() > 0 {
		if err := e.bank.Burn(caller, e.cfg.PayoutToken, value); err != nil {
			return err
		}
	}
	if err := e.bank.Transfer(e.cfg.Account, caller, asset, amount); err != nil {
		return err
	}
	e.emit(events.ReserveWithdrawn{Asset: asset, Caller: caller, Amount: amount, Value: value})
	e.emit(events.ReservesUpdated{Total: ledger.TotalReserves})
	return nil
}

// Manage lets a reserve or liquidity manager pull excess reserves.
func (e *Engine) Manage(caller crypto.Address, asset string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	asset = state.NormalizeSymbol(asset)
	if e.IsLiquidityToken(asset) {
		if !e.IsLiquidityManager(caller) {
			return fmt.Errorf("treasury: manage %s: %w", asset, coreerrors.ErrNotApproved)
		}
	} else {
		if !e.IsReserveManager(caller) {
			return fmt.Errorf("treasury: manage %s: %w", asset, coreerrors.ErrNotApproved)
		}
		if !e.IsReserveToken(asset) {
			return fmt.Errorf("treasury: manage %s: %w", asset, coreerrors.ErrNotAccepted)
		}
	}
	value, err := e.valueOf(ledger, asset, amount)
	if err != nil {
		return err
	}
	if err := e.release(ledger, value); err != nil {
		return fmt.Errorf("treasury: manage %s: %w", asset, err)
	}
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	if err := e.bank.Transfer(e.cfg.Account, caller, asset, amount); err != nil {
		return err
	}
	e.emit(events.ReservesManaged{Asset: asset, Manager: caller, Amount: value})
	e.emit(events.ReservesUpdated{Total: ledger.TotalReserves})
	return nil
}

// ManageNFT releases a collection token id previously received through
// DepositNFT to a liquidity manager.
func (e *Engine) ManageNFT(caller crypto.Address, collection string, id *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return err
	}
	if id == nil || id.Sign() < 0 {
		return fmt.Errorf("treasury: token id: %w", coreerrors.ErrInvalidAmount)
	}
	collection = state.NormalizeSymbol(collection)
	if !e.IsLiquidityManager(caller) {
		return fmt.Errorf("treasury: manage %s: %w", collection, coreerrors.ErrNotApproved)
	}
	if !e.IsSupportedCollection(collection) {
		return fmt.Errorf("treasury: manage %s: %w", collection, coreerrors.ErrNotAccepted)
	}
	value, err := e.valueOf(ledger, collection, big.NewInt(1))
	if err != nil {
		return err
	}
	if err := e.release(ledger, value); err != nil {
		return fmt.Errorf("treasury: manage %s #%s: %w", collection, id, err)
	}
	var held bool
	if _, err := e.state.KVGet(heldKey(collection, id), &held); err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("treasury: manage %s #%s: %w", collection, id, coreerrors.ErrNotApproved)
	}
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	if err := e.state.KVDelete(heldKey(collection, id)); err != nil {
		return err
	}
	if err := e.bank.TransferNFT(collection, id, e.cfg.Account, caller); err != nil {
		return err
	}
	e.emit(events.ReservesManaged{Asset: collection, Manager: caller, Amount: value, TokenID: new(big.Int).Set(id)})
	e.emit(events.ReservesUpdated{Total: ledger.TotalReserves})
	return nil
}

// release debits value from the ledger if it fits within excess reserves.
func (e *Engine) release(ledger *Ledger, value *big.Int) error {
	excess, err := e.excess(ledger)
	if err != nil {
		return err
	}
	if value.Cmp(excess) > 0 {
		return coreerrors.ErrInsufficientReserves
	}
	ledger.TotalReserves.Sub(ledger.TotalReserves, value)
	return nil
}

// MintRewards mints payout tokens to recipient on behalf of a reward manager.
// The amount is capped by excess reserves; the minted amount is returned.
func (e *Engine) MintRewards(caller, recipient crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	if !e.IsRewardManager(caller) {
		return nil, fmt.Errorf("treasury: mint rewards: %w", coreerrors.ErrNotApproved)
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("treasury: mint rewards: %w", coreerrors.ErrInvalidAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	excess, err := e.excess(ledger)
	if err != nil {
		return nil, err
	}
	minted := new(big.Int).Set(amount)
	if minted.Cmp(excess) > 0 {
		minted.Set(excess)
	}
	if minted.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := e.bank.Mint(recipient, e.cfg.PayoutToken, minted); err != nil {
		return nil, err
	}
	e.emit(events.RewardsMinted{Caller: caller, Recipient: recipient, Amount: minted})
	return minted, nil
}

// AuditReserves recomputes the reserve total from the treasury's holdings of
// every accepted asset.
func (e *Engine) AuditReserves(caller crypto.Address) (*big.Int, error) {
	ledger, err := e.requireAdmin(caller)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, category := range []Category{ReserveToken, LiquidityToken} {
		assets, err := e.Members(category)
		if err != nil {
			return nil, err
		}
		for _, asset := range assets {
			balance, err := e.bank.Balance(e.cfg.Account, asset)
			if err != nil {
				return nil, err
			}
			if balance.Sign() == 0 {
				continue
			}
			value, err := e.valueOf(ledger, asset, balance)
			if err != nil {
				return nil, fmt.Errorf("treasury: audit %s: %w", asset, err)
			}
			total.Add(total, value)
		}
	}
	collections, err := e.Members(SupportedCollection)
	if err != nil {
		return nil, err
	}
	for _, collection := range collections {
		count, err := e.bank.NFTBalance(e.cfg.Account, collection)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		value, err := e.valueOf(ledger, collection, new(big.Int).SetUint64(count))
		if err != nil {
			return nil, fmt.Errorf("treasury: audit %s: %w", collection, err)
		}
		total.Add(total, value)
	}
	previous := ledger.TotalReserves
	ledger.TotalReserves = total
	if err := e.storeLedger(ledger); err != nil {
		return nil, err
	}
	e.emit(events.ReservesAudited{Previous: previous, Total: total})
	return new(big.Int).Set(total), nil
}
