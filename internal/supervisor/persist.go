package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// PersistedRecord is the small subset of state that survives restarts:
// the last completed transaction. Timestamps round-trip as RFC 3339.
type PersistedRecord struct {
	LastTransactionStartTime *time.Time `json:"last_transaction_start_time,omitempty"`
	LastTransactionEndTime   *time.Time `json:"last_transaction_end_time,omitempty"`
	LastTransactionEnergy    *float64   `json:"last_transaction_energy,omitempty"`
}

// Store saves and loads the persisted record as a JSON file.
type Store struct {
	path string
}

// NewStore creates a store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted record. A missing file is not an error;
// it returns an empty record.
func (s *Store) Load() (PersistedRecord, error) {
	var record PersistedRecord

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record, nil
		}
		return record, fmt.Errorf("supervisor: reading persisted record: %w", err)
	}

	if err := json.Unmarshal(data, &record); err != nil {
		return PersistedRecord{}, fmt.Errorf("supervisor: parsing persisted record: %w", err)
	}
	return record, nil
}

// Save writes the persisted record, creating parent directories as needed.
func (s *Store) Save(record PersistedRecord) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("supervisor: creating storage directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("supervisor: encoding persisted record: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("supervisor: writing persisted record: %w", err)
	}
	return nil
}

// apply copies the record's present fields into snapshot form.
func (r PersistedRecord) apply(snapshot *Snapshot) {
	fields := make(map[string]any)
	if r.LastTransactionStartTime != nil {
		fields[KeyLastTransactionStartTime] = *r.LastTransactionStartTime
	}
	if r.LastTransactionEndTime != nil {
		fields[KeyLastTransactionEndTime] = *r.LastTransactionEndTime
	}
	if r.LastTransactionEnergy != nil {
		fields[KeyLastTransactionEnergy] = *r.LastTransactionEnergy
	}
	if len(fields) > 0 {
		snapshot.Update(fields)
	}
}
