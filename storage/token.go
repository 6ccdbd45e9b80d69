package storage

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"taskmarket/native/market"
	"taskmarket/observability"
)

// ErrUnknownToken is returned when a requested payment token symbol is
// blank; the ledger accepts any non-blank symbol without prior registration.
var ErrUnknownToken = errors.New("storage: unknown payment token")

// TokenLedger is an in-memory, multi-symbol fungible token ledger standing
// in for the external payment token collaborators described in §6. It
// implements both market.PaymentToken (per symbol) and market.TokenRegistry
// (by symbol lookup), and rejects fee-on-transfer behaviour by construction:
// every transfer moves exactly the requested amount or fails outright.
type TokenLedger struct {
	mu       sync.Mutex
	balances map[string]map[[20]byte]*big.Int
	self     [20]byte
}

// NewTokenLedger constructs an empty multi-symbol ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{balances: make(map[string]map[[20]byte]*big.Int)}
}

// SetSelf configures the address treated as "this account" for Transfer
// calls, mirroring an ERC20's msg.sender debit semantics. It must match the
// task market engine's own SetSelfAddress binding so that payouts debit the
// same custody balance escrow deposits credited.
func (l *TokenLedger) SetSelf(addr [20]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.self = addr
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Mint credits amount of symbol to addr, for test and genesis seeding.
func (l *TokenLedger) Mint(symbol string, addr [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bySymbol := l.accountsFor(normalizeSymbol(symbol))
	bal, ok := bySymbol[addr]
	if !ok {
		bal = big.NewInt(0)
	}
	bySymbol[addr] = new(big.Int).Add(bal, amount)
}

// BalanceOfSymbol returns addr's balance of symbol, for test assertions.
func (l *TokenLedger) BalanceOfSymbol(symbol string, addr [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	bySymbol := l.accountsFor(normalizeSymbol(symbol))
	bal, ok := bySymbol[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (l *TokenLedger) accountsFor(symbol string) map[[20]byte]*big.Int {
	bySymbol, ok := l.balances[symbol]
	if !ok {
		bySymbol = make(map[[20]byte]*big.Int)
		l.balances[symbol] = bySymbol
	}
	return bySymbol
}

// Token implements market.TokenRegistry, returning a bound view of this
// ledger scoped to a single symbol.
func (l *TokenLedger) Token(symbol string) (market.PaymentToken, error) {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return nil, ErrUnknownToken
	}
	return &boundToken{ledger: l, symbol: normalized}, nil
}

// boundToken adapts TokenLedger to market.PaymentToken for a fixed symbol.
type boundToken struct {
	ledger *TokenLedger
	symbol string
}

func (t *boundToken) BalanceOf(owner [20]byte) (*big.Int, error) {
	return t.ledger.BalanceOfSymbol(t.symbol, owner), nil
}

func (t *boundToken) TransferFrom(from, to [20]byte, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() == 0 {
		return true, nil
	}
	if amount.Sign() < 0 {
		return false, nil
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	accounts := t.ledger.accountsFor(t.symbol)
	fromBal, ok := accounts[from]
	if !ok || fromBal.Cmp(amount) < 0 {
		return false, nil
	}
	accounts[from] = new(big.Int).Sub(fromBal, amount)
	toBal, ok := accounts[to]
	if !ok {
		toBal = big.NewInt(0)
	}
	accounts[to] = new(big.Int).Add(toBal, amount)
	observability.Events().RecordTransfer(t.symbol)
	return true, nil
}

// Transfer debits the ledger's configured self account (the market's own
// custody balance, set via SetSelf) and credits to, mirroring an ERC20
// transfer called by the token holder itself.
func (t *boundToken) Transfer(to [20]byte, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() == 0 {
		return true, nil
	}
	if amount.Sign() < 0 {
		return false, nil
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	accounts := t.ledger.accountsFor(t.symbol)
	selfBal, ok := accounts[t.ledger.self]
	if !ok || selfBal.Cmp(amount) < 0 {
		return false, nil
	}
	accounts[t.ledger.self] = new(big.Int).Sub(selfBal, amount)
	toBal, ok := accounts[to]
	if !ok {
		toBal = big.NewInt(0)
	}
	accounts[to] = new(big.Int).Add(toBal, amount)
	observability.Events().RecordTransfer(t.symbol)
	return true, nil
}
