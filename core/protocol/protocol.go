// Package protocol assembles the treasury, bond markets, distributor, stake
// pool and conversion router over one state store and runs every mutation as
// an all-or-nothing operation.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bank"
	"metabond/native/bond"
	nativecommon "metabond/native/common"
	"metabond/native/distributor"
	"metabond/native/router"
	"metabond/native/staking"
	"metabond/native/treasury"
	"metabond/native/valuation"
	"metabond/observability"
	"metabond/observability/otel"
	"metabond/storage"
)

// Options carries the runtime collaborators of a Protocol.
type Options struct {
	Logger *slog.Logger
	// Sink receives committed events in emission order.
	Sink events.Emitter
	// Now is the protocol clock. Nil means time.Now.
	Now    func() time.Time
	Pauses *nativecommon.Pauses
	// Feed quotes assets for oracle valuators and the router.
	Feed valuation.PriceFeed
	// Pools serves reserves to pair valuators.
	Pools valuation.PoolSource
}

// Engines exposes the wired engines to operations run through Execute.
type Engines struct {
	Bank        *bank.Ledger
	Treasury    *treasury.Engine
	Bonds       map[string]*bond.Engine
	Distributor *distributor.Engine
	Staking     *staking.Engine
	Router      *router.QuotedConverter
}

// Protocol owns the state store and the engines operating on it.
type Protocol struct {
	cfg     Config
	state   *state.Manager
	engines Engines
	buffer  *events.Buffer
	sink    events.Emitter
	pauses  *nativecommon.Pauses
	logger  *slog.Logger
	metrics *observability.ProtocolMetrics
	tracer  trace.Tracer
	nowFn   func() time.Time

	mu sync.Mutex
}

// New wires the engines described by cfg over db. Genesis state is written
// by Bootstrap.
func New(db storage.Database, cfg Config, opts Options) (*Protocol, error) {
	if db == nil {
		return nil, fmt.Errorf("protocol: database required")
	}
	if cfg.Admin.IsZero() {
		return nil, fmt.Errorf("protocol: admin: %w", coreerrors.ErrInvalidAddress)
	}
	payout, ok := cfg.token(cfg.PayoutToken)
	if !ok {
		return nil, fmt.Errorf("protocol: payout token %s not declared", cfg.PayoutToken)
	}
	p := &Protocol{
		cfg:     cfg,
		state:   state.NewManager(db),
		buffer:  &events.Buffer{},
		sink:    opts.Sink,
		pauses:  opts.Pauses,
		logger:  opts.Logger,
		metrics: observability.Protocol(),
		tracer:  otel.Tracer("metabond/protocol"),
		nowFn:   opts.Now,
	}
	if p.sink == nil {
		p.sink = events.NoopEmitter{}
	}
	if p.pauses == nil {
		p.pauses = nativecommon.NewPauses()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.nowFn == nil {
		p.nowFn = time.Now
	}

	ledger := bank.NewLedger(p.state)
	tr := treasury.NewEngine(treasury.Config{Account: TreasuryAccount, PayoutToken: cfg.PayoutToken})
	tr.SetState(p.state)
	tr.SetBank(ledger)
	tr.SetPauses(p.pauses)
	tr.SetEmitter(p.buffer)

	valuators := make(map[string]valuation.Valuator, len(cfg.Valuators))
	for _, spec := range cfg.Valuators {
		v, err := p.buildValuator(spec, payout.Decimals, opts)
		if err != nil {
			return nil, err
		}
		if err := tr.RegisterValuator(v); err != nil {
			return nil, err
		}
		valuators[spec.Name] = v
	}

	conv := &router.QuotedConverter{
		Bank:    ledger,
		Feed:    opts.Feed,
		MaxMint: cfg.Router.MaxMint,
		Pauses:  p.pauses,
	}

	dist := distributor.NewEngine(distributor.Config{Account: DistributorAccount, Admin: cfg.Admin})
	dist.SetState(p.state)
	dist.SetMinter(tr)
	dist.SetPauses(p.pauses)
	dist.SetEmitter(p.buffer)
	dist.SetNowFunc(p.nowFn)

	stk := staking.NewEngine(staking.Config{
		Account:     StakingAccount,
		PayoutToken: cfg.PayoutToken,
		ShareToken:  cfg.Staking.ShareToken,
		RewardAsset: cfg.Staking.RewardAsset,
		Admin:       cfg.Admin,
	})
	stk.SetState(p.state)
	stk.SetBank(ledger)
	stk.SetDistributor(dist)
	if opts.Feed != nil && cfg.Staking.RewardAsset != "" {
		stk.SetConverter(conv)
	}
	stk.SetPauses(p.pauses)
	stk.SetEmitter(p.buffer)
	stk.SetNowFunc(p.nowFn)
	dist.SetSupply(stk)

	bonds := make(map[string]*bond.Engine, len(cfg.Markets))
	for _, m := range cfg.Markets {
		if m.Valuator != "" {
			if _, ok := valuators[m.Valuator]; !ok {
				return nil, fmt.Errorf("protocol: market %s: unknown valuator %s", m.Name, m.Valuator)
			}
		}
		dao := m.DAO
		if dao.IsZero() {
			dao = cfg.Admin
		}
		engine := bond.NewEngine(bond.Config{
			Name:        m.Name,
			Principal:   m.Principal,
			Class:       m.Class,
			PayoutToken: cfg.PayoutToken,
			Account:     MarketAccount(m.Name),
			Admin:       cfg.Admin,
			DAO:         dao,
		})
		if _, dup := bonds[engine.Name()]; dup {
			return nil, fmt.Errorf("protocol: duplicate market %s", engine.Name())
		}
		engine.SetState(p.state)
		engine.SetBank(ledger)
		engine.SetTreasury(tr)
		engine.SetStaking(stk)
		engine.SetPauses(p.pauses)
		engine.SetEmitter(p.buffer)
		engine.SetNowFunc(p.nowFn)
		tr.RegisterDebtSource(engine)
		bonds[engine.Name()] = engine
	}

	p.engines = Engines{
		Bank:        ledger,
		Treasury:    tr,
		Bonds:       bonds,
		Distributor: dist,
		Staking:     stk,
		Router:      conv,
	}
	return p, nil
}

func (p *Protocol) buildValuator(spec Valuator, payoutDecimals uint8, opts Options) (valuation.Valuator, error) {
	switch spec.Kind {
	case valuation.KindOracle:
		return valuation.NewOracle(spec.Name, p.state, opts.Feed, valuation.OracleConfig{
			Asset:          spec.Asset,
			AssetDecimals:  spec.AssetDecimals,
			PayoutDecimals: payoutDecimals,
			Markdown:       spec.Markdown,
			Governor:       p.cfg.Admin,
		})
	case valuation.KindPair:
		return valuation.NewPair(spec.Name, p.state, opts.Pools, valuation.PairConfig{
			Pair:              spec.Pair,
			Reference:         spec.Reference,
			ReferenceDecimals: spec.ReferenceDecimals,
			PayoutDecimals:    payoutDecimals,
			Markdown:          spec.Markdown,
			Governor:          p.cfg.Admin,
		})
	case valuation.KindCollection:
		return valuation.NewCollection(spec.Name, p.state, opts.Feed, valuation.CollectionConfig{
			QuoteAsset:     spec.QuoteAsset,
			PayoutDecimals: payoutDecimals,
			Markdown:       spec.Markdown,
			Price:          spec.Price,
			Governor:       p.cfg.Admin,
			Admin:          p.cfg.Admin,
			Oracle:         spec.Oracle,
		})
	}
	return nil, fmt.Errorf("protocol: valuator %s: unsupported kind %q", spec.Name, spec.Kind)
}

// Execute runs fn as one atomic operation. When fn fails every state write
// and buffered event of the operation is dropped; otherwise the writes are
// committed and the events flushed to the sink.
func (p *Protocol) Execute(ctx context.Context, op string, fn func(Engines) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := p.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("operation", op)))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	snap := p.state.Snapshot()
	err := fn(p.engines)
	if err == nil {
		err = p.state.Commit()
	}
	if err != nil {
		p.state.RevertToSnapshot(snap)
		p.state.Discard()
		p.buffer.Discard()
		category := coreerrors.Category(err)
		p.metrics.ObserveOperation(op, category, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, category)
		p.logger.LogAttrs(ctx, slog.LevelWarn, "operation rejected",
			slog.String("operation", op),
			slog.String("category", category),
			slog.String("error", err.Error()))
		return err
	}

	flushed := p.buffer.Flush(p.sink)
	for _, evt := range flushed {
		observability.Events().RecordEvent(evt.EventType())
	}
	p.metrics.ObserveOperation(op, "", time.Since(start))
	p.refreshGauges()
	span.SetAttributes(attribute.Int("events", len(flushed)))
	p.logger.LogAttrs(ctx, slog.LevelDebug, "operation committed",
		slog.String("operation", op),
		slog.Int("events", len(flushed)))
	return nil
}

// View runs a read-only fn against committed state.
func (p *Protocol) View(fn func(Engines) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.state.Discard()
	return fn(p.engines)
}

func (p *Protocol) refreshGauges() {
	for name, market := range p.engines.Bonds {
		price, err := market.BondPrice()
		if err != nil {
			continue
		}
		debt, err := market.CurrentDebt()
		if err != nil {
			continue
		}
		p.metrics.SetMarket(name, price, debt)
	}
	if summary, err := p.engines.Treasury.Summary(); err == nil {
		p.metrics.SetTreasury(summary.TotalReserves, summary.ExcessReserves)
	}
	if s, err := p.engines.Staking.Summary(); err == nil {
		p.metrics.SetStaking(s.Index, s.Epoch.Number)
	}
}

// Markets lists the configured market names in sorted order.
func (p *Protocol) Markets() []string {
	names := make([]string, 0, len(p.engines.Bonds))
	for name := range p.engines.Bonds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Protocol) market(name string) (*bond.Engine, error) {
	engine, ok := p.engines.Bonds[normalizeMarket(name)]
	if !ok {
		return nil, fmt.Errorf("protocol: market %s: %w", name, ErrUnknownMarket)
	}
	return engine, nil
}

// SetPaused pauses or resumes a module.
func (p *Protocol) SetPaused(module string, paused bool) {
	p.pauses.Set(module, paused)
	p.logger.Info("module pause toggled", slog.String("component", module), slog.Bool("paused", paused))
}

// IsPaused reports whether module is paused.
func (p *Protocol) IsPaused(module string) bool {
	return p.pauses.IsPaused(module)
}

// Admin returns the deployment admin.
func (p *Protocol) Admin() crypto.Address { return p.cfg.Admin }

// Now returns the protocol clock.
func (p *Protocol) Now() time.Time { return p.nowFn() }
