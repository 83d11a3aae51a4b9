package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// Caller is the executor surface the supervisor drives. All device
// traffic flows through it; the supervisor never touches the gateway
// directly.
type Caller interface {
	Call(ctx context.Context, method wallbox.Method, args ...any) (any, error)
	CallWith(ctx context.Context, opts executor.CallOptions, method wallbox.Method, args ...any) (any, error)
}

// TransactionHistory records completed charging sessions. Optional;
// a nil history disables recording.
type TransactionHistory interface {
	Record(ctx context.Context, start, end time.Time, energyKWh float64) error
}

// Logger is the minimal logging surface the supervisor needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UpdateFunc receives the merged snapshot after each successful refresh.
type UpdateFunc func(data map[string]any, lastUpdateSuccess bool)

// Config holds the supervisor's tunables, derived from the main config.
type Config struct {
	// MaxLoad is the installation's maximum charging current (amperes);
	// the upper clamp bound for SetMaxCurrent.
	MaxLoad int

	// MinCurrent is the lower clamp bound (6 A per the charging standard).
	MinCurrent int

	// PollInterval is the time between refresh cycles.
	PollInterval time.Duration

	// FirstRefreshTimeout bounds the mandatory startup refresh.
	FirstRefreshTimeout time.Duration
}

// Supervisor owns the snapshot and coordinates refreshes and actions
// for one wallbox.
type Supervisor struct {
	caller   Caller
	snapshot *Snapshot
	store    *Store
	history  TransactionHistory
	logger   Logger
	cfg      Config

	// refreshRequests coalesces on-demand refresh asks between ticks.
	refreshRequests chan struct{}

	onUpdate []UpdateFunc
}

// New creates a Supervisor. Call Start to load persisted state, fetch
// device identity and begin polling.
func New(caller Caller, store *Store, history TransactionHistory, cfg Config, logger Logger) *Supervisor {
	return &Supervisor{
		caller:          caller,
		snapshot:        NewSnapshot(),
		store:           store,
		history:         history,
		logger:          logger,
		cfg:             cfg,
		refreshRequests: make(chan struct{}, 1),
	}
}

// OnUpdate registers a callback invoked after every successful refresh
// with a copy of the merged snapshot. Register before Start; not safe
// to call concurrently with polling.
func (s *Supervisor) OnUpdate(fn UpdateFunc) {
	s.onUpdate = append(s.onUpdate, fn)
}

// Start brings the supervisor up:
//
//  1. Load the persisted last-transaction record into the snapshot.
//  2. Fetch device identity (serial, firmware, setup status, max current).
//  3. Run the mandatory first refresh; failure means the device is not
//     ready and startup must abort.
//  4. Launch the poll loop.
//
// The poll loop stops when ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.store != nil {
		record, err := s.store.Load()
		if err != nil {
			s.logger.Warn("failed to load persisted transaction record", "error", err.Error())
		} else {
			record.apply(s.snapshot)
		}
	}

	if err := s.fetchIdentity(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	firstCtx, cancel := context.WithTimeout(ctx, s.cfg.FirstRefreshTimeout)
	defer cancel()
	if _, err := s.RefreshStatus(firstCtx); err != nil {
		return fmt.Errorf("%w: first refresh failed: %v", ErrNotReady, err)
	}

	go s.pollLoop(ctx)
	return nil
}

// pollLoop runs the refresh cycle on a fixed interval and whenever an
// on-demand request arrives. A failed refresh is logged and retried on
// the next tick; availability is carried by the snapshot's success flag.
func (s *Supervisor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status polling stopped")
			return
		case <-ticker.C:
		case <-s.refreshRequests:
		}

		if _, err := s.RefreshStatus(ctx); err != nil {
			s.logger.Warn("status refresh failed", "error", err.Error())
		}
	}
}

// RequestRefresh asks the poll loop to refresh soon. Requests arriving
// while one is already pending coalesce into a single refresh.
func (s *Supervisor) RequestRefresh() {
	select {
	case s.refreshRequests <- struct{}{}:
	default:
	}
}

// Status returns a copy of the snapshot and the availability flag.
func (s *Supervisor) Status() (map[string]any, bool) {
	return s.snapshot.Data(), s.snapshot.LastUpdateSuccess()
}

// HealthCheck reports whether the last refresh verdict was success.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	if !s.snapshot.LastUpdateSuccess() {
		return fmt.Errorf("supervisor: last status refresh failed")
	}
	return nil
}

// notify fans the refreshed snapshot out to registered consumers.
func (s *Supervisor) notify() {
	if len(s.onUpdate) == 0 {
		return
	}
	data, ok := s.Status()
	for _, fn := range s.onUpdate {
		fn(data, ok)
	}
}
