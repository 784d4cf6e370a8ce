package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendledger/config"
	"lendledger/core/events"
	"lendledger/core/state"
	"lendledger/core/types"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/native/lending/fixedpoint"
	"lendledger/observability"
	"lendledger/observability/metrics"
	telemetry "lendledger/observability/otel"
	"lendledger/storage"
)

// Options configures a Ledger. Zero values select the defaults.
type Options struct {
	Params       lending.Params
	Pauses       nativecommon.PauseView
	ActionPauses lending.ActionPauses
	Logger       *slog.Logger
	Metrics      *metrics.LendingMetrics
	Tracer       trace.Tracer
	// Emitter receives every committed event.
	Emitter events.Emitter
	// Clock supplies the day of actions that carry none.
	Clock func() time.Time
}

// Ledger applies actions to persistent state one at a time. Each action runs
// against a transaction overlay that is committed as a single batch only when
// the engine accepts it.
type Ledger struct {
	mu sync.Mutex

	state        *state.Manager
	params       lending.Params
	pauses       nativecommon.PauseView
	actionPauses lending.ActionPauses
	logger       *slog.Logger
	metrics      *metrics.LendingMetrics
	tracer       trace.Tracer
	emitter      events.Emitter
	clock        func() time.Time
}

// Receipt describes a committed action.
type Receipt struct {
	Action      Action              `json:"action"`
	Day         uint64              `json:"day"`
	Events      []*types.Event      `json:"events"`
	Liquidation *LiquidationOutcome `json:"liquidation,omitempty"`
}

// LiquidationOutcome is the settled result of a liquidate action.
type LiquidationOutcome struct {
	State    string `json:"state"`
	MaxRepay string `json:"max_repay"`
	Seized   string `json:"seized"`
	Health   string `json:"target_health"`
}

// New opens a ledger on db.
func New(db storage.Database, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	params := opts.Params
	if params.DaysPerYear == 0 && params.LiquidationThreshold.IsZero() {
		params = lending.DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		state:        state.NewManager(db),
		params:       params,
		pauses:       opts.Pauses,
		actionPauses: opts.ActionPauses,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		emitter:      opts.Emitter,
		clock:        opts.Clock,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.tracer == nil {
		l.tracer = telemetry.Tracer()
	}
	if l.emitter == nil {
		l.emitter = events.NoopEmitter{}
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l, nil
}

// SeedPools creates a pool for every configured asset that has none yet and
// returns how many were created. Seeded pools are dated at the current ledger
// day so that a later replay may start from any day.
func (l *Ledger) SeedPools(ctx context.Context, listings []config.AssetListing) (int, error) {
	listed := 0
	for _, listing := range listings {
		listing := listing
		cfg, err := listing.AssetConfig()
		if err != nil {
			return listed, err
		}
		if _, exists, err := l.state.GetPool(cfg.Asset); err != nil {
			return listed, err
		} else if exists {
			continue
		}
		if _, err := l.execute(ctx, Action{Type: ActionInitPool, Listing: &listing}, true); err != nil {
			return listed, err
		}
		listed++
	}
	return listed, nil
}

// Apply validates, executes and commits one action. A rejected action leaves
// state untouched and emits nothing.
func (l *Ledger) Apply(ctx context.Context, action Action) (*Receipt, error) {
	return l.execute(ctx, action, false)
}

// execute runs Apply. An undated pinned action takes the ledger day instead of
// the clock.
func (l *Ledger) execute(ctx context.Context, action Action, pinned bool) (*Receipt, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	ctx, span := l.tracer.Start(ctx, "ledger.apply", trace.WithAttributes(
		attribute.String("lending.action", action.Type),
		attribute.String("lending.asset", action.Asset),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	receipt, err := l.apply(ctx, action, pinned)
	l.metrics.ObserveAction(action.Type, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Debug("lending action rejected",
			slog.String("action", action.Type),
			slog.String("account", action.Account),
			slog.String("asset", action.Asset),
			slog.String("kind", lending.KindOf(err).String()),
			slog.String("error", err.Error()))
		if action.Type == ActionLiquidate {
			l.metrics.ObserveLiquidation(lending.LiquidationRejected.String())
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("lending.day", int64(receipt.Day)))
	if receipt.Liquidation != nil {
		l.metrics.ObserveLiquidation(receipt.Liquidation.State)
		l.logger.Info("liquidation settled",
			slog.String("account", action.Account),
			slog.String("target", action.Target),
			slog.String("repaid", action.Amount),
			slog.String("seized", receipt.Liquidation.Seized))
	}
	return receipt, nil
}

func (l *Ledger) apply(ctx context.Context, action Action, pinned bool) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := l.state.Begin()
	defer txn.Discard()

	lastDay, err := txn.LedgerDay()
	if err != nil {
		return nil, fmt.Errorf("ledger: load day: %w", err)
	}
	day := action.Day
	if day == 0 && pinned {
		day = lastDay
	} else if day == 0 {
		day = lending.DayFromTime(l.clock())
		if day < lastDay {
			day = lastDay
		}
	}
	if day < lastDay {
		return nil, fmt.Errorf("%w: %d < %d", ErrDayRegressed, day, lastDay)
	}

	recorder := &events.Recorder{}
	engine := l.engine(txn.Manager, day, recorder)
	receipt := &Receipt{Action: action, Day: day}
	if err := l.dispatch(engine, action, receipt); err != nil {
		return nil, err
	}
	if day != lastDay {
		if err := txn.SetLedgerDay(day); err != nil {
			return nil, err
		}
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	for _, evt := range recorder.Events() {
		l.emitter.Emit(evt)
		if r, ok := evt.(interface{ Event() *types.Event }); ok {
			rendered := r.Event()
			receipt.Events = append(receipt.Events, rendered)
			asset := rendered.Attributes["asset"]
			if asset == "" {
				asset = rendered.Attributes["payAsset"]
			}
			observability.Events().RecordEvent(rendered.Type, asset)
		}
	}
	l.metrics.SetDay(day)
	l.publishPools(day, action.assets())
	return receipt, nil
}

func (l *Ledger) engine(st *state.Manager, day uint64, emitter events.Emitter) *lending.Engine {
	engine := lending.NewEngine(l.params)
	engine.SetState(st)
	engine.SetPauses(l.pauses)
	engine.SetActionPauses(l.actionPauses)
	engine.SetEmitter(emitter)
	engine.SetDay(day)
	return engine
}

func (l *Ledger) dispatch(engine *lending.Engine, a Action, receipt *Receipt) error {
	amount := fixedpoint.Zero()
	if a.Amount != "" {
		v, err := parseAmount("amount", a.Amount)
		if err != nil {
			return err
		}
		amount = v
	}
	switch a.Type {
	case ActionSupply:
		return engine.Supply(a.Account, a.Asset, amount, a.Collateral)
	case ActionWithdraw:
		return engine.Withdraw(a.Account, a.Asset, amount)
	case ActionBorrow:
		return engine.Borrow(a.Account, a.Asset, amount)
	case ActionRepay:
		return engine.Repay(a.Account, a.Asset, amount)
	case ActionLiquidate:
		result, err := engine.Liquidate(a.Account, a.Target, a.BorrowedAsset, a.CollateralAsset, amount)
		if err != nil {
			return err
		}
		receipt.Liquidation = &LiquidationOutcome{
			State:    result.State.String(),
			MaxRepay: result.MaxRepay.String(),
			Seized:   result.Seized.String(),
			Health:   result.TargetHealth.String(),
		}
		return nil
	case ActionSetRate:
		rate, err := parseAmount("rate", a.Rate)
		if err != nil {
			return err
		}
		return engine.SetExchangeRate(a.Asset, rate)
	case ActionInitPool:
		listing := config.AssetListing{Asset: a.Asset, ExchangeRate: a.Rate}
		if a.Listing != nil {
			listing = *a.Listing
			if listing.Asset == "" {
				listing.Asset = a.Asset
			}
			if listing.ExchangeRate == "" {
				listing.ExchangeRate = a.Rate
			}
		}
		cfg, err := listing.AssetConfig()
		if err != nil {
			if errors.Is(err, lending.ErrInvalidConfig) {
				return err
			}
			return fmt.Errorf("%w: %v", lending.ErrInvalidConfig, err)
		}
		return engine.InitPool(cfg)
	case ActionSetCollateral:
		return engine.SetCollateral(a.Account, a.Asset, a.Collateral)
	case ActionSetPoolEnabled:
		return engine.SetPoolEnabled(a.Asset, *a.Enabled)
	case ActionAccrue:
		return engine.Accrue(a.Asset)
	default:
		return invalidf("unknown type %q", a.Type)
	}
}

func (l *Ledger) publishPools(day uint64, assets []string) {
	if l.metrics == nil || len(assets) == 0 {
		return
	}
	engine := l.engine(l.state, day, nil)
	for _, asset := range assets {
		pool, _, err := engine.Pool(asset)
		if err != nil {
			continue
		}
		utilization, err := lending.Utilization(pool)
		if err != nil {
			continue
		}
		l.metrics.SetPool(metrics.PoolSnapshot{
			Asset:       pool.Asset,
			TotalSupply: pool.TotalSupply.Float64(),
			TotalBorrow: pool.TotalBorrow.Float64(),
			Utilization: utilization.Float64(),
			SupplyIndex: pool.SupplyIndex.Float64(),
			BorrowIndex: pool.BorrowIndex.Float64(),
		})
	}
}

// Root returns the state root over every committed lending record.
func (l *Ledger) Root() (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.StateRoot()
}

// Day returns the day of the latest applied action.
func (l *Ledger) Day() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LedgerDay()
}

// Params returns the engine parameters.
func (l *Ledger) Params() lending.Params {
	return l.params
}

// view runs fn against a read-only engine projected to the later of the
// clock day and the ledger day, so reads include interest accrued since the
// last action. Nothing is persisted.
func (l *Ledger) view(fn func(engine *lending.Engine, day uint64) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	day, err := l.state.LedgerDay()
	if err != nil {
		return err
	}
	if now := lending.DayFromTime(l.clock()); now > day {
		day = now
	}
	return fn(l.engine(l.state, day, nil), day)
}
