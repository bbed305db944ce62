// Row-level CRUD operations.
//
// All operations validate before mutating; a failed call leaves the store
// untouched. Mutations are in-memory only until the next Commit.

package docdb

import (
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/maruel/docdb/internal/snapshot"
)

// Row is a row's data: a mapping of column name to value.
type Row = map[string]any

// Select returns the rows of table matching where, in insertion order.
//
// A row matches when its value equals the filter value for every filter
// key; rows missing a filtered key are excluded. An empty where selects
// every row. If columns is non-empty, each returned row is projected to
// those columns; projecting a column absent from a row is an error.
func (db *Database) Select(table string, columns []string, where Row) ([]Row, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.rowsLocked(table)
	if err != nil {
		return nil, err
	}
	result := []Row{}
	for pair := rows.Oldest(); pair != nil; pair = pair.Next() {
		if !matches(pair.Value, where) {
			continue
		}
		row := pair.Value
		if len(columns) > 0 {
			projected := make(Row, len(columns))
			for _, col := range columns {
				v, ok := row[col]
				if !ok {
					return nil, &NoSuchColumnError{Column: col, Columns: db.columnNamesLocked(table)}
				}
				projected[col] = cloneValue(v)
			}
			result = append(result, projected)
		} else {
			result = append(result, cloneRow(row))
		}
	}
	return result, nil
}

// Insert stores a new row in table. If row is empty, the key is
// auto-assigned as the stringified current row count. Every data key must
// be a declared column and the key must not already exist.
//
// Auto-assigned keys are positional: after a deletion the count can collide
// with an existing key, which surfaces as a DuplicateKeyError.
func (db *Database) Insert(table, row string, data Row) error {
	if row == "" && len(data) == 0 {
		return ErrNoData
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.rowsLocked(table)
	if err != nil {
		return err
	}
	if row == "" {
		row = strconv.Itoa(rows.Len())
	}
	if err := db.validateDataLocked(table, data); err != nil {
		return err
	}
	if _, ok := rows.Get(row); ok {
		return &DuplicateKeyError{Table: table, Key: row}
	}
	stored := cloneRow(data)
	if stored == nil {
		stored = Row{}
	}
	rows.Set(row, stored)
	db.log.Debug("Inserted row", "table", table, "row", row)
	return nil
}

// Delete removes rows from table. With a row key, exactly that row is
// deleted (unknown keys are an error). Otherwise every row matching where
// is deleted. With neither, Delete is a no-op.
func (db *Database) Delete(table, row string, where Row) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.rowsLocked(table)
	if err != nil {
		return err
	}
	var doomed []string
	switch {
	case row != "":
		if _, ok := rows.Get(row); !ok {
			return &NoSuchKeyError{Key: row, Keys: rowKeys(rows)}
		}
		doomed = []string{row}
	case len(where) > 0:
		// Collect first so deletion never mutates the mapping mid-scan.
		for pair := rows.Oldest(); pair != nil; pair = pair.Next() {
			if matches(pair.Value, where) {
				doomed = append(doomed, pair.Key)
			}
		}
	}
	for _, key := range doomed {
		rows.Delete(key)
	}
	if len(doomed) > 0 {
		db.log.Debug("Deleted rows", "table", table, "count", len(doomed))
	}
	return nil
}

// Update merges data into existing rows. With a row key, exactly that row
// is updated (unknown keys are an error). Otherwise every row matching
// where is updated. One of row or where is required.
func (db *Database) Update(table, row string, where, data Row) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.rowsLocked(table)
	if err != nil {
		return err
	}
	if row == "" && len(where) == 0 {
		return ErrNoData
	}
	if err := db.validateDataLocked(table, data); err != nil {
		return err
	}
	if row != "" {
		r, ok := rows.Get(row)
		if !ok {
			return &NoSuchKeyError{Key: row, Keys: rowKeys(rows)}
		}
		maps.Copy(r, cloneRow(data))
		db.log.Debug("Updated row", "table", table, "row", row)
		return nil
	}
	n := 0
	for pair := rows.Oldest(); pair != nil; pair = pair.Next() {
		if matches(pair.Value, where) {
			// Clone per row so updated rows never share slice values.
			maps.Copy(pair.Value, cloneRow(data))
			n++
		}
	}
	db.log.Debug("Updated rows", "table", table, "count", n)
	return nil
}

// rowsLocked returns the row store for table. Callers hold db.mu.
func (db *Database) rowsLocked(table string) (*snapshot.Rows, error) {
	rows, ok := db.tables.Get(table)
	if !ok {
		return nil, &NoSuchTableError{Table: table, Tables: db.tableNamesLocked()}
	}
	return rows, nil
}

// columnNamesLocked returns the declared column names of table in
// declaration order. Callers hold db.mu.
func (db *Database) columnNamesLocked(table string) []string {
	cols, ok := db.meta.Tables.Get(table)
	if !ok {
		return nil
	}
	names := make([]string, 0, cols.Len())
	for pair := cols.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// validateDataLocked checks that every data key is a declared column and,
// with type enforcement enabled, that values match the declared datatypes.
// Callers hold db.mu.
func (db *Database) validateDataLocked(table string, data Row) error {
	declared := db.columnNamesLocked(table)
	for key, value := range data {
		if !slices.Contains(declared, key) {
			return &NoSuchColumnError{Column: key, Columns: declared}
		}
		if db.enforceTypes {
			cols, _ := db.meta.Tables.Get(table)
			dt, _ := cols.Get(key)
			if err := Datatype(dt).Check(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// matches reports whether row satisfies every filter entry.
func matches(row, where Row) bool {
	for key, want := range where {
		got, ok := row[key]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// valueEqual compares a stored value against a filter value. Numbers compare
// by value regardless of representation: rows reload from the snapshot with
// float64 values, and a filter written with an int must keep matching across
// the persistence cycle. Slices compare element-wise under the same rule.
func valueEqual(got, want any) bool {
	if g, ok := toFloat(got); ok {
		w, ok := toFloat(want)
		return ok && g == w
	}
	gv, wv := reflect.ValueOf(got), reflect.ValueOf(want)
	if gv.Kind() == reflect.Slice && wv.Kind() == reflect.Slice {
		if gv.Len() != wv.Len() {
			return false
		}
		for i := 0; i < gv.Len(); i++ {
			if !valueEqual(gv.Index(i).Interface(), wv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// cloneRow copies a row including its slice and map values, so stored rows
// and returned rows never alias the caller's data.
func cloneRow(r Row) Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch s := v.(type) {
	case []any:
		c := make([]any, len(s))
		for i, e := range s {
			c[i] = cloneValue(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(s))
		for k, e := range s {
			c[k] = cloneValue(e)
		}
		return c
	}
	// Typed slices like []string from LIST OF columns.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		c := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(c, rv)
		return c.Interface()
	}
	return v
}

func rowKeys(rows *snapshot.Rows) []string {
	keys := make([]string, 0, rows.Len())
	for pair := rows.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}
