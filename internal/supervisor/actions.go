package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// setCurrentTimeout is longer than the default because the device
// persists the load setting to flash before answering.
const setCurrentTimeout = 15 * time.Second

var actionOpts = executor.CallOptions{Priority: executor.PriorityAction}

// StartCharging authorizes a session under the device's first stored
// RFID tag. The charging flag is set optimistically; the requested
// refresh confirms the real state shortly after.
func (s *Supervisor) StartCharging(ctx context.Context) error {
	defer s.RequestRefresh()

	tags, err := callWithAs[[]wallbox.RFIDTag](ctx, s.caller, actionOpts, wallbox.MethodRFIDGet)
	if err != nil {
		return fmt.Errorf("fetching RFID tags: %w", err)
	}
	if len(tags) == 0 {
		return ErrNoRFIDTags
	}

	if _, err := s.caller.CallWith(ctx, actionOpts, wallbox.MethodTransactionStart, tags[0].TagID); err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	s.snapshot.Set(KeyChargerIsCharging, true)
	s.logger.Info("charging started", "tag", wallbox.TagIDToHex(tags[0].TagID))
	return nil
}

// StopCharging ends the active session. A "NotFound" device error means
// nothing was charging and is a benign no-op; on success the session's
// start/end/energy are persisted and appended to the history store.
func (s *Supervisor) StopCharging(ctx context.Context) error {
	defer s.RequestRefresh()

	record, err := callWithAs[wallbox.TransactionRecord](ctx, s.caller, actionOpts, wallbox.MethodTransactionStop)
	if err != nil {
		if wallbox.IsDeviceErrorKind(err, "NotFound") {
			s.logger.Warn("no active transaction to stop")
			s.snapshot.Set(KeyChargerIsCharging, false)
			return nil
		}
		return fmt.Errorf("stopping transaction: %w", err)
	}

	start, startErr := parseDeviceTime(record.StartTime)
	end, endErr := parseDeviceTime(record.EndTime)
	if startErr != nil || endErr != nil {
		s.logger.Warn("transaction stopped but timestamps unparseable",
			"start", record.StartTime, "end", record.EndTime)
		s.snapshot.Set(KeyChargerIsCharging, false)
		return nil
	}
	energyKWh := roundKWh(record.Energy)

	s.snapshot.Update(map[string]any{
		KeyLastTransactionStartTime: start,
		KeyLastTransactionEndTime:   end,
		KeyLastTransactionEnergy:    energyKWh,
		KeyChargerIsCharging:        false,
	})

	if s.store != nil {
		persisted := PersistedRecord{
			LastTransactionStartTime: &start,
			LastTransactionEndTime:   &end,
			LastTransactionEnergy:    &energyKWh,
		}
		if err := s.store.Save(persisted); err != nil {
			s.logger.Error("failed to persist transaction record", "error", err.Error())
		}
	}

	if s.history != nil {
		if err := s.history.Record(ctx, start, end, energyKWh); err != nil {
			s.logger.Error("failed to record transaction history", "error", err.Error())
		}
	}

	s.logger.Info("charging stopped", "energy_kwh", energyKWh)
	return nil
}

// SetMaxCurrent writes a new charging current limit, clamped to the
// configured bounds. A timeout is non-fatal: the device frequently
// answers late while applying the setting, and the next refresh shows
// the real value. Any other error propagates.
func (s *Supervisor) SetMaxCurrent(ctx context.Context, amperes int) error {
	defer s.RequestRefresh()

	clamped := amperes
	if clamped < s.cfg.MinCurrent {
		clamped = s.cfg.MinCurrent
	}
	if clamped > s.cfg.MaxLoad {
		clamped = s.cfg.MaxLoad
	}

	opts := executor.CallOptions{Priority: executor.PriorityAction, Timeout: setCurrentTimeout}
	if _, err := s.caller.CallWith(ctx, opts, wallbox.MethodConfigLoadSet, clamped); err != nil {
		if errors.Is(err, executor.ErrCallTimeout) {
			s.logger.Warn("timeout setting max current, verifying via refresh", "amperes", clamped)
		} else {
			return fmt.Errorf("setting max current: %w", err)
		}
	}

	s.snapshot.Set(KeyMaxCurrent, clamped)
	return nil
}

// Restart reboots the device. The executor already treats the expected
// connection drop as success; any residual failure is logged, not fatal.
func (s *Supervisor) Restart(ctx context.Context) error {
	defer s.RequestRefresh()

	if _, err := s.caller.CallWith(ctx, actionOpts, wallbox.MethodUtilRestart); err != nil {
		s.logger.Warn("restart request failed", "error", err.Error())
		return nil
	}

	s.logger.Info("wallbox restart requested")
	return nil
}

// ListTags returns the device's authorized RFID tags.
func (s *Supervisor) ListTags(ctx context.Context) ([]wallbox.RFIDTag, error) {
	tags, err := callWithAs[[]wallbox.RFIDTag](ctx, s.caller, actionOpts, wallbox.MethodRFIDGet)
	if err != nil {
		return nil, fmt.Errorf("fetching RFID tags: %w", err)
	}
	return tags, nil
}

// ScanTag puts the reader into scan mode and returns the tag presented.
// Device errors abort the flow and surface to the user; no retry.
func (s *Supervisor) ScanTag(ctx context.Context) ([]int, error) {
	tagID, err := callWithAs[[]int](ctx, s.caller, actionOpts, wallbox.MethodRFIDScan)
	if err != nil {
		return nil, fmt.Errorf("scanning RFID tag: %w", err)
	}
	return tagID, nil
}

// AddTag stores a scanned tag under a display name.
func (s *Supervisor) AddTag(ctx context.Context, tagID []int, name string) error {
	if _, err := s.caller.CallWith(ctx, actionOpts, wallbox.MethodRFIDAdd, tagID, name); err != nil {
		return fmt.Errorf("adding RFID tag: %w", err)
	}
	s.logger.Info("RFID tag added", "tag", wallbox.TagIDToHex(tagID), "name", name)
	return nil
}

// DeleteTag removes a stored tag.
func (s *Supervisor) DeleteTag(ctx context.Context, tagID []int) error {
	if _, err := s.caller.CallWith(ctx, actionOpts, wallbox.MethodRFIDDelete, tagID); err != nil {
		return fmt.Errorf("deleting RFID tag: %w", err)
	}
	s.logger.Info("RFID tag deleted", "tag", wallbox.TagIDToHex(tagID))
	return nil
}
