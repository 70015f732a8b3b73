package abstract

import "fmt"

// Status is the result code of a record operation: 0 is success, negative
// values are errors.
type Status int

const (
	StatusOK    Status = 0
	StatusError Status = -1
	// StatusBadRequest signals a caller-contract violation (unknown field,
	// value map not matching the statement arity) detected before anything
	// was sent to the store.
	StatusBadRequest Status = -2
)

// Converts a status to an error, for callers that count successes/failures
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return fmt.Errorf("operation failed with status %d", s)
}

// Record maps field names to opaque binary values. A name present with a nil
// value is an explicit null: the column exists in the row but holds no value.
// A name absent from the map means the column was not part of the result.
type Record map[string][]byte

// DB is a record store binding. One instance is created per worker; Init is
// called once per instance before any operation. Bindings may share state
// (connections, compiled statements) between instances internally.
//
// All operations block for the duration of the store round trip and are safe
// for concurrent use from independent workers.
type DB interface {
	Init() error
	Close()

	// Reads the record stored under key. A missing key yields an empty
	// Record and StatusOK.
	ReadAll(table string, key string) (Record, Status)
	// Reads a single field of the record stored under key.
	ReadOne(table string, key string, field string) (Record, Status)
	// Reads up to count records starting at startKey, in the store's own
	// ordering. Fewer than count records is not an error.
	ScanAll(table string, startKey string, count int) ([]Record, Status)
	// Like ScanAll, but each record carries only the given field.
	ScanOne(table string, startKey string, count int, field string) ([]Record, Status)
	// Writes a single field of the record stored under key, leaving other
	// fields untouched.
	UpdateOne(table string, key string, field string, value []byte) Status
	// Writes the given fields of the record stored under key.
	UpdateAll(table string, key string, values map[string][]byte) Status
	// Inserts a record under key with the given field values.
	Insert(table string, key string, values map[string][]byte) Status
	// Deletes the record stored under key.
	Delete(table string, key string) Status
}

// TableCreator is implemented by bindings that can create the benchmark table
// themselves (the column store keyspace/table is created out of band).
type TableCreator interface {
	CreateTable() error
}
