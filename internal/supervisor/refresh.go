package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// recentTransactionLimit is how many completed sessions the snapshot
// exposes from the device's transaction log.
const recentTransactionLimit = 5

// deviceTimeLayout matches the device's "2025-03-14 18:02:11 UTC"
// timestamp format.
const deviceTimeLayout = "2006-01-02 15:04:05 MST"

// fetchIdentity pulls the fields that never change per tick: serial
// number, firmware versions, setup status and configured max current.
// They seed the carried-forward snapshot keys before the first refresh.
func (s *Supervisor) fetchIdentity(ctx context.Context) error {
	serial, err := callAs[wallbox.SerialInfo](ctx, s.caller, wallbox.MethodInfoSerialGet)
	if err != nil {
		return fmt.Errorf("fetching serial number: %w", err)
	}

	firmwares, err := callAs[wallbox.FirmwareVersions](ctx, s.caller, wallbox.MethodInfoFirmwaresGet)
	if err != nil {
		return fmt.Errorf("fetching firmware versions: %w", err)
	}

	setup, err := callAs[wallbox.SetupStatus](ctx, s.caller, wallbox.MethodSetupGet)
	if err != nil {
		return fmt.Errorf("fetching setup status: %w", err)
	}

	load, err := callAs[wallbox.LoadConfig](ctx, s.caller, wallbox.MethodConfigLoadGet)
	if err != nil {
		return fmt.Errorf("fetching configured load: %w", err)
	}

	s.snapshot.Update(map[string]any{
		KeySerialNumber:  serial.SerialNumber,
		KeyESPFirmware:   firmwares.ESP.String(),
		KeyAtmelFirmware: firmwares.Atmel.String(),
		// The device reports "has issue" per subsystem; the snapshot
		// exposes the negation, "setup complete".
		KeySetupStatusNetwork:          !setup.Network,
		KeySetupStatusAmbientLight:     !setup.AmbientLight,
		KeySetupStatusMaxChargingPower: !setup.MaxChargingPower,
		KeyMaxCurrent:                  load.MaxCurrent,
	})

	s.logger.Info("wallbox identified",
		"serial_number", serial.SerialNumber,
		"esp_fw", firmwares.ESP.String(),
		"atmel_fw", firmwares.Atmel.String(),
	)
	return nil
}

// RefreshStatus runs one refresh cycle: fetch the volatile status
// battery at poll priority, merge it with the carried-forward fields
// and replace the snapshot.
//
// Failure classes:
//   - connectivity or call timeout: transient; the previous snapshot is
//     returned unchanged and the success flag stays true.
//   - device error or anything unexpected: the success flag goes false
//     and the error propagates for the poll loop to log and retry.
func (s *Supervisor) RefreshStatus(ctx context.Context) (map[string]any, error) {
	pollOpts := executor.CallOptions{Priority: executor.PriorityPoll}

	errFlags, err := callWithAs[wallbox.ErrorFlags](ctx, s.caller, pollOpts, wallbox.MethodAtmelErrorGet)
	if err != nil {
		return s.refreshFailed(err)
	}

	network, err := callWithAs[wallbox.NetworkStatus](ctx, s.caller, pollOpts, wallbox.MethodConfigNetworkStatus)
	if err != nil {
		return s.refreshFailed(err)
	}

	transaction, err := callWithAs[wallbox.TransactionStatus](ctx, s.caller, pollOpts, wallbox.MethodTransactionGet)
	if err != nil {
		return s.refreshFailed(err)
	}

	log, err := callWithAs[[]wallbox.TransactionRecord](ctx, s.caller, pollOpts, wallbox.MethodTransactionLatestGet)
	if err != nil {
		return s.refreshFailed(err)
	}

	load, err := callWithAs[wallbox.LoadConfig](ctx, s.caller, pollOpts, wallbox.MethodConfigLoadGet)
	if err != nil {
		return s.refreshFailed(err)
	}

	prev := s.snapshot.Data()
	merged := map[string]any{
		// Carried forward: identity, firmware and setup fields are not
		// re-queried per tick and must survive the merge untouched.
		KeySerialNumber:                prev[KeySerialNumber],
		KeyESPFirmware:                 prev[KeyESPFirmware],
		KeyAtmelFirmware:               prev[KeyAtmelFirmware],
		KeySetupStatusNetwork:          prev[KeySetupStatusNetwork],
		KeySetupStatusAmbientLight:     prev[KeySetupStatusAmbientLight],
		KeySetupStatusMaxChargingPower: prev[KeySetupStatusMaxChargingPower],
		KeyLastTransactionStartTime:    prev[KeyLastTransactionStartTime],
		KeyLastTransactionEndTime:      prev[KeyLastTransactionEndTime],
		KeyLastTransactionEnergy:       prev[KeyLastTransactionEnergy],

		// Freshly fetched.
		KeyAtmelError:               errFlags.Error,
		KeyNetworkEthernet:          network.Ethernet == "Connected",
		KeyNetworkWLAN:              network.WLAN == "Connected",
		KeyChargerStatus:            transaction.OcppCpState,
		KeyChargerIsCharging:        transaction.OcppCpState != "Available",
		KeyChargerCurrentRate:       transaction.CurrentChargeRate,
		KeyChargerSecondsSinceStart: transaction.SecondsSinceChargeStart,
		KeyChargerCurrentEnergy:     roundKWh(transaction.CurrentTransactionEnergy),
		KeyMaxCurrent:               load.MaxCurrent,
		KeyRecentTransactions:       recentTransactions(log, s.logger),
	}

	s.snapshot.Replace(merged)
	s.snapshot.SetLastUpdateSuccess(true)
	s.notify()

	s.logger.Debug("status refresh complete", "charger_status", transaction.OcppCpState)
	return merged, nil
}

// refreshFailed routes a refresh error by class.
func (s *Supervisor) refreshFailed(err error) (map[string]any, error) {
	if wallbox.IsConnectivity(err) || errors.Is(err, executor.ErrCallTimeout) {
		// Transient hiccup: keep the stale snapshot displayed.
		s.logger.Warn("transient failure during status refresh", "error", err.Error())
		return s.snapshot.Data(), nil
	}

	s.snapshot.SetLastUpdateSuccess(false)
	return nil, err
}

// recentTransactions normalizes the device's transaction log into the
// most recent sessions by end time, newest first.
func recentTransactions(log []wallbox.TransactionRecord, logger Logger) []TransactionSummary {
	summaries := make([]TransactionSummary, 0, len(log))
	for _, record := range log {
		start, err := parseDeviceTime(record.StartTime)
		if err != nil {
			logger.Warn("skipping transaction with bad start time", "value", record.StartTime, "error", err.Error())
			continue
		}
		end, err := parseDeviceTime(record.EndTime)
		if err != nil {
			logger.Warn("skipping transaction with bad end time", "value", record.EndTime, "error", err.Error())
			continue
		}
		summaries = append(summaries, TransactionSummary{
			StartTime: start,
			EndTime:   end,
			EnergyKWh: roundKWh(record.Energy),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].EndTime.After(summaries[j].EndTime)
	})

	if len(summaries) > recentTransactionLimit {
		summaries = summaries[:recentTransactionLimit]
	}
	return summaries
}

// parseDeviceTime parses a device timestamp, normalizing the firmware's
// odd "GMT+00:00" zone marker to "UTC" first. Offsets other than zero
// fall back to a numeric-offset parse.
func parseDeviceTime(value string) (time.Time, error) {
	normalized := strings.Replace(value, "GMT+00:00", "UTC", 1)

	ts, err := time.Parse(deviceTimeLayout, normalized)
	if err == nil {
		return ts.UTC(), nil
	}

	// Non-zero offsets arrive as "GMT+02:00"; strip the GMT prefix and
	// parse the remaining numeric offset.
	if stripped := strings.Replace(value, "GMT", "", 1); stripped != value {
		if ts, offErr := time.Parse("2006-01-02 15:04:05 -07:00", stripped); offErr == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable device timestamp %q: %w", value, err)
}

// roundKWh converts device-reported watt hours to kWh rounded to 0.01.
func roundKWh(wattHours float64) float64 {
	return math.Round(wattHours/1000*100) / 100
}

// callAs invokes a method at default priority and asserts the result type.
func callAs[T any](ctx context.Context, caller Caller, method wallbox.Method, args ...any) (T, error) {
	return callWithAs[T](ctx, caller, executor.CallOptions{}, method, args...)
}

// callWithAs invokes a method and asserts the result type. A gateway
// returning the wrong type is a programming error surfaced loudly.
func callWithAs[T any](ctx context.Context, caller Caller, opts executor.CallOptions, method wallbox.Method, args ...any) (T, error) {
	var zero T

	result, err := caller.CallWith(ctx, opts, method, args...)
	if err != nil {
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("supervisor: %s returned %T, want %T", method, result, zero)
	}
	return typed, nil
}
