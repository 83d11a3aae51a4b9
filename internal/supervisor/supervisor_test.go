package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// testLogger satisfies Logger and discards output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type recordedCall struct {
	method wallbox.Method
	opts   executor.CallOptions
	args   []any
}

// fakeCaller stands in for the executor: it records calls and answers
// from a per-method handler table.
type fakeCaller struct {
	mu       sync.Mutex
	handlers map[wallbox.Method]func(args []any) (any, error)
	calls    []recordedCall
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		handlers: make(map[wallbox.Method]func(args []any) (any, error)),
	}
}

func (c *fakeCaller) on(method wallbox.Method, result any, err error) {
	c.handlers[method] = func([]any) (any, error) { return result, err }
}

func (c *fakeCaller) Call(ctx context.Context, method wallbox.Method, args ...any) (any, error) {
	return c.CallWith(ctx, executor.CallOptions{}, method, args...)
}

func (c *fakeCaller) CallWith(_ context.Context, opts executor.CallOptions, method wallbox.Method, args ...any) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, recordedCall{method: method, opts: opts, args: args})
	handler, ok := c.handlers[method]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("fakeCaller: unexpected method %s", method)
	}
	return handler(args)
}

func (c *fakeCaller) recorded() []recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// healthyRefresh wires the full refresh battery with plausible answers.
func healthyRefresh(c *fakeCaller) {
	c.on(wallbox.MethodAtmelErrorGet, wallbox.ErrorFlags{Error: false}, nil)
	c.on(wallbox.MethodConfigNetworkStatus, wallbox.NetworkStatus{Ethernet: "Connected", WLAN: "Disconnected"}, nil)
	c.on(wallbox.MethodTransactionGet, wallbox.TransactionStatus{
		OcppCpState:              "Charging",
		CurrentChargeRate:        14.5,
		SecondsSinceChargeStart:  320,
		CurrentTransactionEnergy: 2345.0,
	}, nil)
	c.on(wallbox.MethodTransactionLatestGet, []wallbox.TransactionRecord{}, nil)
	c.on(wallbox.MethodConfigLoadGet, wallbox.LoadConfig{MaxCurrent: 16}, nil)
}

func healthyIdentity(c *fakeCaller) {
	c.on(wallbox.MethodInfoSerialGet, wallbox.SerialInfo{SerialNumber: "WB-1234"}, nil)
	c.on(wallbox.MethodInfoFirmwaresGet, wallbox.FirmwareVersions{
		ESP:   wallbox.ESPFirmware{Major: 2, Minor: 1, Patch: 7},
		Atmel: wallbox.AtmelFirmware{Major: 1, Minor: 0, Revision: 3, BuildNumber: 42},
	}, nil)
	c.on(wallbox.MethodSetupGet, wallbox.SetupStatus{Network: false, AmbientLight: true, MaxChargingPower: false}, nil)
	c.on(wallbox.MethodConfigLoadGet, wallbox.LoadConfig{MaxCurrent: 16}, nil)
}

func newTestSupervisor(t *testing.T, caller Caller) *Supervisor {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "last_transaction.json"))
	return New(caller, store, nil, Config{
		MaxLoad:             16,
		MinCurrent:          6,
		PollInterval:        25 * time.Millisecond,
		FirstRefreshTimeout: time.Second,
	}, testLogger{})
}

func TestFetchIdentity_NegatesSetupFlags(t *testing.T) {
	caller := newFakeCaller()
	healthyIdentity(caller)
	s := newTestSupervisor(t, caller)

	if err := s.fetchIdentity(context.Background()); err != nil {
		t.Fatalf("fetchIdentity() error = %v", err)
	}

	data, _ := s.Status()
	if data[KeySerialNumber] != "WB-1234" {
		t.Errorf("serial = %v, want WB-1234", data[KeySerialNumber])
	}
	if data[KeyESPFirmware] != "2.1.7" {
		t.Errorf("esp firmware = %v, want 2.1.7", data[KeyESPFirmware])
	}
	if data[KeyAtmelFirmware] != "1.0.3.42" {
		t.Errorf("atmel firmware = %v, want 1.0.3.42", data[KeyAtmelFirmware])
	}

	// The device reports has-issue flags; the snapshot stores setup-complete.
	if data[KeySetupStatusNetwork] != true {
		t.Error("network setup should read complete when device reports no issue")
	}
	if data[KeySetupStatusAmbientLight] != false {
		t.Error("ambient light setup should read incomplete when device reports an issue")
	}
}

func TestRefreshStatus_MergeAndDerivedFields(t *testing.T) {
	caller := newFakeCaller()
	healthyIdentity(caller)
	healthyRefresh(caller)
	s := newTestSupervisor(t, caller)

	if err := s.fetchIdentity(context.Background()); err != nil {
		t.Fatalf("fetchIdentity() error = %v", err)
	}

	data, err := s.RefreshStatus(context.Background())
	if err != nil {
		t.Fatalf("RefreshStatus() error = %v", err)
	}

	// Identity fields carried forward untouched.
	if data[KeySerialNumber] != "WB-1234" {
		t.Errorf("serial dropped by merge: %v", data[KeySerialNumber])
	}
	if data[KeySetupStatusAmbientLight] != false {
		t.Error("setup field dropped by merge")
	}

	// Derived booleans.
	if data[KeyNetworkEthernet] != true {
		t.Error("ethernet should derive true from \"Connected\"")
	}
	if data[KeyNetworkWLAN] != false {
		t.Error("wlan should derive false from \"Disconnected\"")
	}
	if data[KeyChargerIsCharging] != true {
		t.Error("charging should derive true from non-Available state")
	}

	// Wh -> kWh rounded to 0.01.
	if data[KeyChargerCurrentEnergy] != 2.35 {
		t.Errorf("energy = %v, want 2.35", data[KeyChargerCurrentEnergy])
	}

	if !s.snapshot.LastUpdateSuccess() {
		t.Error("LastUpdateSuccess should be true after a clean refresh")
	}

	// The battery must run at poll priority.
	for _, call := range caller.recorded() {
		if call.method == wallbox.MethodAtmelErrorGet && call.opts.Priority != executor.PriorityPoll {
			t.Errorf("refresh call priority = %d, want %d", call.opts.Priority, executor.PriorityPoll)
		}
	}
}

func TestRefreshStatus_ConnectivityKeepsPreviousSnapshot(t *testing.T) {
	caller := newFakeCaller()
	healthyIdentity(caller)
	healthyRefresh(caller)
	s := newTestSupervisor(t, caller)

	if err := s.fetchIdentity(context.Background()); err != nil {
		t.Fatalf("fetchIdentity() error = %v", err)
	}
	before, err := s.RefreshStatus(context.Background())
	if err != nil {
		t.Fatalf("RefreshStatus() error = %v", err)
	}

	caller.on(wallbox.MethodAtmelErrorGet, nil, &wallbox.ConnectivityError{
		Op: "atmel_error_get", Err: errors.New("connection refused"),
	})

	after, err := s.RefreshStatus(context.Background())
	if err != nil {
		t.Fatalf("transient refresh should not error, got %v", err)
	}
	if !s.snapshot.LastUpdateSuccess() {
		t.Error("LastUpdateSuccess must stay true on a connectivity failure")
	}

	if len(after) != len(before) {
		t.Fatalf("snapshot changed on transient failure: %d keys vs %d", len(after), len(before))
	}
	for k, v := range before {
		got := after[k]
		if fmt.Sprint(got) != fmt.Sprint(v) {
			t.Errorf("key %q changed: %v -> %v", k, v, got)
		}
	}
}

func TestRefreshStatus_CallTimeoutIsTransient(t *testing.T) {
	caller := newFakeCaller()
	healthyRefresh(caller)
	caller.on(wallbox.MethodTransactionGet, nil, fmt.Errorf("%w: transaction_get after 10s", executor.ErrCallTimeout))
	s := newTestSupervisor(t, caller)

	if _, err := s.RefreshStatus(context.Background()); err != nil {
		t.Errorf("timeout refresh should not error, got %v", err)
	}
	if !s.snapshot.LastUpdateSuccess() {
		t.Error("LastUpdateSuccess must stay true on a call timeout")
	}
}

func TestRefreshStatus_DeviceErrorPropagates(t *testing.T) {
	caller := newFakeCaller()
	healthyRefresh(caller)
	caller.on(wallbox.MethodConfigNetworkStatus, nil, &wallbox.DeviceError{Kind: "Internal", Message: "controller busy"})
	s := newTestSupervisor(t, caller)

	_, err := s.RefreshStatus(context.Background())
	if err == nil {
		t.Fatal("expected device error to propagate")
	}
	if s.snapshot.LastUpdateSuccess() {
		t.Error("LastUpdateSuccess must be false after a device error")
	}
}

func TestRecentTransactions_SortNormalizeAndLimit(t *testing.T) {
	log := []wallbox.TransactionRecord{
		{StartTime: "2025-03-01 08:00:00 UTC", EndTime: "2025-03-01 09:00:00 UTC", Energy: 5120},
		{StartTime: "2025-03-07 08:00:00 UTC", EndTime: "2025-03-07 10:30:00 GMT+00:00", Energy: 7680},
		{StartTime: "2025-03-02 08:00:00 UTC", EndTime: "2025-03-02 09:15:00 UTC", Energy: 1024},
		{StartTime: "2025-03-05 18:00:00 UTC", EndTime: "2025-03-05 20:00:00 GMT+00:00", Energy: 9999},
		{StartTime: "2025-03-03 08:00:00 UTC", EndTime: "2025-03-03 08:45:00 UTC", Energy: 512},
		{StartTime: "2025-03-06 08:00:00 UTC", EndTime: "2025-03-06 09:00:00 UTC", Energy: 2048},
		{StartTime: "2025-03-04 08:00:00 UTC", EndTime: "2025-03-04 11:00:00 UTC", Energy: 4096},
	}

	got := recentTransactions(log, testLogger{})

	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}

	// Newest first by normalized end time.
	for i := 1; i < len(got); i++ {
		if got[i].EndTime.After(got[i-1].EndTime) {
			t.Errorf("entries not in descending end-time order at %d", i)
		}
	}
	if got[0].EndTime.Day() != 7 {
		t.Errorf("newest entry day = %d, want 7", got[0].EndTime.Day())
	}
	if got[4].EndTime.Day() != 3 {
		t.Errorf("oldest surviving entry day = %d, want 3", got[4].EndTime.Day())
	}

	// Energy converted and rounded.
	if got[0].EnergyKWh != 7.68 {
		t.Errorf("energy = %v, want 7.68", got[0].EnergyKWh)
	}
}

func TestParseDeviceTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain UTC marker",
			input: "2025-03-14 18:02:11 UTC",
			want:  "2025-03-14T18:02:11Z",
		},
		{
			name:  "device GMT zero marker",
			input: "2025-03-14 18:02:11 GMT+00:00",
			want:  "2025-03-14T18:02:11Z",
		},
		{
			name:  "non-zero offset",
			input: "2025-03-14 18:02:11 GMT+02:00",
			want:  "2025-03-14T16:02:11Z",
		},
		{
			name:    "garbage",
			input:   "not a timestamp",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDeviceTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDeviceTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if formatted := got.UTC().Format(time.RFC3339); formatted != tt.want {
				t.Errorf("parseDeviceTime(%q) = %s, want %s", tt.input, formatted, tt.want)
			}
		})
	}
}

func TestStart_FirstRefreshFailureIsFatal(t *testing.T) {
	caller := newFakeCaller()
	healthyIdentity(caller)
	healthyRefresh(caller)
	caller.on(wallbox.MethodAtmelErrorGet, nil, &wallbox.DeviceError{Kind: "Internal", Message: "boom"})
	s := newTestSupervisor(t, caller)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Start() error = %v, want ErrNotReady", err)
	}
}

func TestStart_PollsAndStopsOnCancel(t *testing.T) {
	caller := newFakeCaller()
	healthyIdentity(caller)
	healthyRefresh(caller)
	s := newTestSupervisor(t, caller)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Let a few ticks pass, then stop.
	time.Sleep(80 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	refreshes := 0
	for _, call := range caller.recorded() {
		if call.method == wallbox.MethodAtmelErrorGet {
			refreshes++
		}
	}
	if refreshes < 2 {
		t.Errorf("expected periodic refreshes, saw %d", refreshes)
	}
}

func TestOnUpdate_FiresAfterRefresh(t *testing.T) {
	caller := newFakeCaller()
	healthyRefresh(caller)
	s := newTestSupervisor(t, caller)

	var mu sync.Mutex
	updates := 0
	s.OnUpdate(func(data map[string]any, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		updates++
		if !ok {
			t.Error("update callback should see success flag true")
		}
		if _, present := data[KeyChargerStatus]; !present {
			t.Error("update callback should see the merged snapshot")
		}
	})

	if _, err := s.RefreshStatus(context.Background()); err != nil {
		t.Fatalf("RefreshStatus() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
}
