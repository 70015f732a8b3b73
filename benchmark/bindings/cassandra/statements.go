package cassandra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gocql/gocql"
)

// Schema describes the benchmark table: one key column plus FieldCount value
// columns named FieldPrefix+i. The schema is fixed for the lifetime of the
// statement set; changing it requires rebuilding the whole set.
type Schema struct {
	Key         string
	FieldPrefix string
	FieldCount  int
	Table       string
	// ReadAllFields selects whole-row select/scan statements; otherwise one
	// select/scan pair is compiled per field.
	ReadAllFields bool
}

func (s Schema) fieldName(i int) string {
	return s.FieldPrefix + strconv.Itoa(i)
}

func (s Schema) validate() error {
	if s.Table == "" {
		return fmt.Errorf("schema: missing table name")
	}
	if s.Key == "" {
		return fmt.Errorf("schema: missing key column name")
	}
	if s.FieldCount < 0 {
		return fmt.Errorf("schema: negative field count %d", s.FieldCount)
	}
	return nil
}

// statement is one compiled query shape: the CQL text, the consistency level
// of its class, and the number of values it binds.
type statement struct {
	query string
	cons  gocql.Consistency
	nargs int
}

// statementSet holds every query shape needed to serve the record API against
// one schema. It is built once and never mutated, so concurrent operations
// read it without locking.
type statementSet struct {
	insert  *statement
	updates map[string]*statement // field name -> single-column upsert
	del     *statement

	// whole-row mode
	sel  *statement
	scan *statement

	// per-field mode
	sels  map[string]*statement
	scans map[string]*statement
}

// Builds an upsert over the key column plus the given fields. The store
// merges columns on write, so an upsert naming a single field updates that
// column only and leaves the rest of the row untouched.
func upsertQuery(s Schema, fields []string) string {
	cols := append([]string{s.Key}, fields...)
	markers := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table, strings.Join(cols, ","), markers)
}

func selectQuery(s Schema, projection string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1", projection, s.Table, s.Key)
}

// The scan predicate ranges over the store's partitioner token of the key,
// not the key value itself, so scan order is unrelated to lexicographic key
// order. The row limit is bound, not part of the text.
func scanQuery(s Schema, projection string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE token(%s) >= token(?) LIMIT ?", projection, s.Table, s.Key)
}

// Compiles the statement set for a schema, applying the write consistency
// level to insert/update/delete statements and the read level to select/scan
// statements.
func compileStatements(s Schema, read gocql.Consistency, write gocql.Consistency) (*statementSet, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	set := &statementSet{}

	// full-row insert: key + every field, in field-index order
	fields := make([]string, s.FieldCount)
	for i := range fields {
		fields[i] = s.fieldName(i)
	}
	set.insert = &statement{upsertQuery(s, fields), write, s.FieldCount + 1}

	// single-column upserts, one per field
	set.updates = make(map[string]*statement, s.FieldCount)
	for _, f := range fields {
		set.updates[f] = &statement{upsertQuery(s, []string{f}), write, 2}
	}

	set.del = &statement{fmt.Sprintf("DELETE FROM %s WHERE %s = ?", s.Table, s.Key), write, 1}

	if s.ReadAllFields {
		set.sel = &statement{selectQuery(s, "*"), read, 1}
		set.scan = &statement{scanQuery(s, "*"), read, 2}
	} else {
		set.sels = make(map[string]*statement, s.FieldCount)
		set.scans = make(map[string]*statement, s.FieldCount)
		for _, f := range fields {
			set.sels[f] = &statement{selectQuery(s, f), read, 1}
			set.scans[f] = &statement{scanQuery(s, f), read, 2}
		}
	}

	return set, nil
}
