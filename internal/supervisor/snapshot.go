package supervisor

import (
	"sync"
	"time"
)

// Snapshot keys. These are the stable field names exposed to the API
// and MQTT consumers.
const (
	KeySerialNumber                = "serial_number"
	KeyESPFirmware                 = "esp_fw"
	KeyAtmelFirmware               = "atmel_fw"
	KeySetupStatusNetwork          = "setup_status_network"
	KeySetupStatusAmbientLight     = "setup_status_ambient_light"
	KeySetupStatusMaxChargingPower = "setup_status_max_charging_power"
	KeyMaxCurrent                  = "max_current"
	KeyAtmelError                  = "atmel_error"
	KeyNetworkEthernet             = "network_status_ethernet"
	KeyNetworkWLAN                 = "network_status_wlan"
	KeyChargerStatus               = "charger_status"
	KeyChargerIsCharging           = "charger_is_charging"
	KeyChargerCurrentRate          = "charger_current_rate"
	KeyChargerSecondsSinceStart    = "charger_seconds_since_start"
	KeyChargerCurrentEnergy        = "charger_current_energy"
	KeyLastTransactionStartTime    = "last_transaction_start_time"
	KeyLastTransactionEndTime      = "last_transaction_end_time"
	KeyLastTransactionEnergy       = "last_transaction_energy"
	KeyRecentTransactions          = "recent_transactions"
)

// TransactionSummary is one completed session in normalized form:
// UTC timestamps and energy in kWh rounded to 0.01.
type TransactionSummary struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	EnergyKWh float64   `json:"energy_kwh"`
}

// Snapshot is the guarded last-known device state.
//
// Writers are the refresh cycle (wholesale replace) and action handlers
// (targeted key updates); readers receive copies and never block
// writers for long. The success flag marks the whole snapshot suspect
// without clearing it: stale data stays visible.
type Snapshot struct {
	mu                sync.RWMutex
	data              map[string]any
	lastUpdateSuccess bool
}

// NewSnapshot returns an empty snapshot. The success flag starts true;
// only a failed refresh clears it.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		data:              make(map[string]any),
		lastUpdateSuccess: true,
	}
}

// Get returns one field and whether it is present.
func (s *Snapshot) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok
}

// Data returns a copy of all fields.
func (s *Snapshot) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Set updates a single field (targeted action-handler update).
func (s *Snapshot) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Update merges fields into the snapshot without touching others.
func (s *Snapshot) Update(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.data[k] = v
	}
}

// Replace swaps in a freshly merged view (refresh-cycle update).
func (s *Snapshot) Replace(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// LastUpdateSuccess reports whether the most recent refresh that
// reached a verdict succeeded.
func (s *Snapshot) LastUpdateSuccess() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateSuccess
}

// SetLastUpdateSuccess records the refresh verdict.
func (s *Snapshot) SetLastUpdateSuccess(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdateSuccess = ok
}
