package core

import (
	"strings"
	"testing"

	"ycsbench/benchmark/bindings/abstract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDB records the last operation issued to it
type stubDB struct {
	status abstract.Status
	op     string
	key    string
	field  string
	count  int
	values map[string][]byte
	tables int
}

func (s *stubDB) Init() error { return nil }
func (s *stubDB) Close()      {}

func (s *stubDB) ReadAll(table, key string) (abstract.Record, abstract.Status) {
	s.op, s.key = "readAll", key
	return abstract.Record{}, s.status
}

func (s *stubDB) ReadOne(table, key, field string) (abstract.Record, abstract.Status) {
	s.op, s.key, s.field = "readOne", key, field
	return abstract.Record{}, s.status
}

func (s *stubDB) ScanAll(table, startKey string, count int) ([]abstract.Record, abstract.Status) {
	s.op, s.key, s.count = "scanAll", startKey, count
	return nil, s.status
}

func (s *stubDB) ScanOne(table, startKey string, count int, field string) ([]abstract.Record, abstract.Status) {
	s.op, s.key, s.count, s.field = "scanOne", startKey, count, field
	return nil, s.status
}

func (s *stubDB) UpdateOne(table, key, field string, value []byte) abstract.Status {
	s.op, s.key, s.field = "updateOne", key, field
	return s.status
}

func (s *stubDB) UpdateAll(table, key string, values map[string][]byte) abstract.Status {
	s.op, s.key, s.values = "updateAll", key, values
	return s.status
}

func (s *stubDB) Insert(table, key string, values map[string][]byte) abstract.Status {
	s.op, s.key, s.values = "insert", key, values
	return s.status
}

func (s *stubDB) Delete(table, key string) abstract.Status {
	s.op, s.key = "delete", key
	return s.status
}

func (s *stubDB) CreateTable() error {
	s.tables++
	return nil
}

func TestConfigDefaultsAndUnmarshal(t *testing.T) {
	core := New(0, []byte("recordCount: 50\nfieldCount: 3\nreadAllFields: false\n"))

	assert.Equal(t, 50, core.RecordCount)
	assert.Equal(t, 3, core.FieldCount)
	assert.False(t, core.ReadAllFields)
	assert.Equal(t, 100, core.FieldLength)
	assert.Equal(t, "usertable", core.Table)
}

func TestPrepareWholeRowOperations(t *testing.T) {
	core := New(0, []byte("recordCount: 10\nfieldCount: 4\nreadAllFields: true\n"))
	db := &stubDB{}
	operations := core.Prepare(db)

	require.NoError(t, operations["read"]())
	assert.Equal(t, "readAll", db.op)
	assert.True(t, strings.HasPrefix(db.key, "user"))

	require.NoError(t, operations["scan"]())
	assert.Equal(t, "scanAll", db.op)
	assert.GreaterOrEqual(t, db.count, 1)
	assert.LessOrEqual(t, db.count, core.MaxScanLength)

	require.NoError(t, operations["update"]())
	assert.Equal(t, "updateOne", db.op)
	assert.True(t, strings.HasPrefix(db.field, core.FieldPrefix))

	require.NoError(t, operations["delete"]())
	assert.Equal(t, "delete", db.op)
}

func TestPreparePerFieldOperations(t *testing.T) {
	core := New(0, []byte("recordCount: 10\nfieldCount: 4\nreadAllFields: false\nwriteAllFields: true\n"))
	db := &stubDB{}
	operations := core.Prepare(db)

	require.NoError(t, operations["read"]())
	assert.Equal(t, "readOne", db.op)
	assert.True(t, strings.HasPrefix(db.field, core.FieldPrefix))

	require.NoError(t, operations["scan"]())
	assert.Equal(t, "scanOne", db.op)

	require.NoError(t, operations["update"]())
	assert.Equal(t, "updateAll", db.op)
	assert.Len(t, db.values, core.FieldCount)
}

func TestInsertBuildsFullRows(t *testing.T) {
	core := New(0, []byte("fieldCount: 5\nfieldLength: 16\n"))
	db := &stubDB{}
	operations := core.Prepare(db)

	require.NoError(t, operations["insert"]())
	assert.Len(t, db.values, 5)
	for i := 0; i < 5; i++ {
		value, ok := db.values[core.fieldName(i)]
		require.True(t, ok)
		assert.Len(t, value, 16)
	}

	// insert keys are unique across calls
	first := db.key
	require.NoError(t, operations["insert"]())
	assert.NotEqual(t, first, db.key)
}

func TestOperationErrorsPropagate(t *testing.T) {
	core := New(0, []byte("recordCount: 10\n"))
	db := &stubDB{status: abstract.StatusError}
	operations := core.Prepare(db)

	for name, operation := range operations {
		assert.Error(t, operation(), name)
	}
}

func TestSetupCreatesTables(t *testing.T) {
	core := New(0, []byte(""))
	db := &stubDB{}

	core.Setup([]abstract.DB{db, db})
	assert.Equal(t, 2, db.tables)
}
