package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// fakeHistory records history appends for assertions.
type fakeHistory struct {
	mu      sync.Mutex
	records []TransactionSummary
	err     error
}

func (h *fakeHistory) Record(_ context.Context, start, end time.Time, energyKWh float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, TransactionSummary{StartTime: start, EndTime: end, EnergyKWh: energyKWh})
	return nil
}

func newActionSupervisor(t *testing.T, caller Caller, history TransactionHistory) (*Supervisor, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "last_transaction.json")
	s := New(caller, NewStore(path), history, Config{
		MaxLoad:             16,
		MinCurrent:          6,
		PollInterval:        time.Second,
		FirstRefreshTimeout: time.Second,
	}, testLogger{})
	return s, path
}

func TestStartCharging_UsesFirstTag(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodRFIDGet, []wallbox.RFIDTag{
		{TagID: []int{4, 138, 252, 1}, Name: "home"},
		{TagID: []int{9, 9, 9, 9}, Name: "spare"},
	}, nil)
	caller.on(wallbox.MethodTransactionStart, nil, nil)
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.StartCharging(context.Background()); err != nil {
		t.Fatalf("StartCharging() error = %v", err)
	}

	var started *recordedCall
	for _, call := range caller.recorded() {
		if call.opts.Priority != executor.PriorityAction {
			t.Errorf("%s priority = %d, want %d", call.method, call.opts.Priority, executor.PriorityAction)
		}
		if call.method == wallbox.MethodTransactionStart {
			c := call
			started = &c
		}
	}
	if started == nil {
		t.Fatal("transaction_start was never called")
	}
	tagID, ok := started.args[0].([]int)
	if !ok || wallbox.TagIDToHex(tagID) != "048AFC01" {
		t.Errorf("transaction_start tag = %v, want first tag", started.args[0])
	}

	if charging, _ := s.snapshot.Get(KeyChargerIsCharging); charging != true {
		t.Error("charging flag should be set optimistically")
	}
}

func TestStartCharging_NoTags(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodRFIDGet, []wallbox.RFIDTag{}, nil)
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.StartCharging(context.Background()); !errors.Is(err, ErrNoRFIDTags) {
		t.Errorf("StartCharging() error = %v, want ErrNoRFIDTags", err)
	}
}

func TestStopCharging_PersistsAndRecords(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodTransactionStop, wallbox.TransactionRecord{
		StartTime: "2025-03-14 16:00:00 GMT+00:00",
		EndTime:   "2025-03-14 18:02:11 GMT+00:00",
		Energy:    7654,
	}, nil)
	history := &fakeHistory{}
	s, path := newActionSupervisor(t, caller, history)

	if err := s.StopCharging(context.Background()); err != nil {
		t.Fatalf("StopCharging() error = %v", err)
	}

	if charging, _ := s.snapshot.Get(KeyChargerIsCharging); charging != false {
		t.Error("charging flag should be false after stop")
	}
	if energy, _ := s.snapshot.Get(KeyLastTransactionEnergy); energy != 7.65 {
		t.Errorf("last transaction energy = %v, want 7.65", energy)
	}

	// Record persisted as RFC 3339 JSON.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("persisted record not written: %v", err)
	}
	if !strings.Contains(string(data), "2025-03-14T18:02:11Z") {
		t.Errorf("persisted record missing RFC 3339 end time: %s", data)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.records) != 1 {
		t.Fatalf("history records = %d, want 1", len(history.records))
	}
	if history.records[0].EnergyKWh != 7.65 {
		t.Errorf("history energy = %v, want 7.65", history.records[0].EnergyKWh)
	}
}

func TestStopCharging_NotFoundIsBenign(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodTransactionStop, nil, &wallbox.DeviceError{Kind: "NotFound", Message: "no active transaction"})
	s, path := newActionSupervisor(t, caller, nil)

	if err := s.StopCharging(context.Background()); err != nil {
		t.Fatalf("StopCharging() with NotFound should be benign, got %v", err)
	}

	if charging, _ := s.snapshot.Get(KeyChargerIsCharging); charging != false {
		t.Error("charging flag should still be set false")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("persisted record must remain unchanged on NotFound")
	}
}

func TestStopCharging_OtherDeviceErrorPropagates(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodTransactionStop, nil, &wallbox.DeviceError{Kind: "Internal", Message: "controller fault"})
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.StopCharging(context.Background()); err == nil {
		t.Error("non-NotFound device errors must propagate")
	}
}

func TestSetMaxCurrent_Clamps(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{
			name:      "above installation max",
			requested: 32,
			want:      16,
		},
		{
			name:      "below standard minimum",
			requested: 2,
			want:      6,
		},
		{
			name:      "in range",
			requested: 10,
			want:      10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller()
			caller.on(wallbox.MethodConfigLoadSet, nil, nil)
			s, _ := newActionSupervisor(t, caller, nil)

			if err := s.SetMaxCurrent(context.Background(), tt.requested); err != nil {
				t.Fatalf("SetMaxCurrent() error = %v", err)
			}

			calls := caller.recorded()
			if len(calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(calls))
			}
			if got := calls[0].args[0]; got != tt.want {
				t.Errorf("submitted current = %v, want %d", got, tt.want)
			}
			if calls[0].opts.Timeout != setCurrentTimeout {
				t.Errorf("timeout = %v, want %v", calls[0].opts.Timeout, setCurrentTimeout)
			}
			if current, _ := s.snapshot.Get(KeyMaxCurrent); current != tt.want {
				t.Errorf("snapshot max current = %v, want %d", current, tt.want)
			}
		})
	}
}

func TestSetMaxCurrent_TimeoutNonFatal(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodConfigLoadSet, nil, fmt.Errorf("%w: config_load_set after 15s", executor.ErrCallTimeout))
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.SetMaxCurrent(context.Background(), 10); err != nil {
		t.Errorf("timeout should be non-fatal, got %v", err)
	}
}

func TestSetMaxCurrent_DeviceErrorFatal(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodConfigLoadSet, nil, &wallbox.DeviceError{Kind: "Invalid", Message: "out of range"})
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.SetMaxCurrent(context.Background(), 10); err == nil {
		t.Error("device errors must propagate")
	}
}

func TestRestart_FailureIsNonFatal(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodUtilRestart, nil, &wallbox.DeviceError{Kind: "Busy", Message: "try later"})
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.Restart(context.Background()); err != nil {
		t.Errorf("Restart() failures should be logged, not returned: %v", err)
	}
}

func TestActions_RequestRefresh(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodUtilRestart, nil, nil)
	s, _ := newActionSupervisor(t, caller, nil)

	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	select {
	case <-s.refreshRequests:
	default:
		t.Error("action should leave a pending refresh request")
	}
}

func TestRFIDFlows_DeviceErrorAborts(t *testing.T) {
	caller := newFakeCaller()
	caller.on(wallbox.MethodRFIDScan, nil, &wallbox.DeviceError{Kind: "Timeout", Message: "no tag presented"})
	caller.on(wallbox.MethodRFIDAdd, nil, &wallbox.DeviceError{Kind: "Full", Message: "tag store full"})
	caller.on(wallbox.MethodRFIDDelete, nil, nil)
	caller.on(wallbox.MethodRFIDGet, []wallbox.RFIDTag{{TagID: []int{1}, Name: "a"}}, nil)
	s, _ := newActionSupervisor(t, caller, nil)
	ctx := context.Background()

	if _, err := s.ScanTag(ctx); err == nil {
		t.Error("scan device error must abort")
	}
	if err := s.AddTag(ctx, []int{1, 2}, "tag"); err == nil {
		t.Error("add device error must abort")
	}
	if err := s.DeleteTag(ctx, []int{1}); err != nil {
		t.Errorf("DeleteTag() error = %v", err)
	}

	tags, err := s.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "a" {
		t.Errorf("tags = %v", tags)
	}
}
