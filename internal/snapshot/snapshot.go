// Package snapshot reads and writes the whole-database serialized state.
//
// The on-disk format is a single JSON document with two sibling fields:
// "_metadata" (timestamps plus per-table column declarations) and "tables"
// (all row data). Table, row, and column ordering is preserved across
// load/store by backing every mapping with an ordered map.
//
// The file is a scoped resource: every load or write opens it, consumes it
// fully, and closes it. No handle is held between operations.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Columns maps column name to its declared datatype string, in declaration
// order.
type Columns = orderedmap.OrderedMap[string, string]

// Rows maps row key to row data, in insertion order.
type Rows = orderedmap.OrderedMap[string, map[string]any]

// Metadata holds database lifecycle timestamps and all table schemas.
type Metadata struct {
	CreatedOn   Timestamp                               `json:"created_on"`
	LastUpdated Timestamp                               `json:"last_updated"`
	Tables      *orderedmap.OrderedMap[string, *Columns] `json:"meta_tables"`
}

// Snapshot is the full serialized database state.
type Snapshot struct {
	Metadata *Metadata                             `json:"_metadata"`
	Tables   *orderedmap.OrderedMap[string, *Rows] `json:"tables"`
}

// New returns an empty snapshot with both timestamps set to now.
func New(now time.Time) *Snapshot {
	return &Snapshot{
		Metadata: &Metadata{
			CreatedOn:   Timestamp{now},
			LastUpdated: Timestamp{now},
			Tables:      orderedmap.New[string, *Columns](),
		},
		Tables: orderedmap.New[string, *Rows](),
	}
}

// Load reads and decodes the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if s.Metadata == nil {
		return nil, fmt.Errorf("snapshot %s is missing _metadata", path)
	}
	if s.Metadata.Tables == nil {
		s.Metadata.Tables = orderedmap.New[string, *Columns]()
	}
	if s.Tables == nil {
		s.Tables = orderedmap.New[string, *Rows]()
	}
	return &s, nil
}

// Write encodes the snapshot and replaces the file at path entirely.
func Write(path string, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}
