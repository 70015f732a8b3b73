package rdb

import (
	"fmt"
	"testing"

	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each test gets its own named in-memory database; cache=shared keeps it
// visible to every pooled connection.
func newTestClient(t *testing.T, fieldCount int, readAllFields bool) *Client {
	t.Helper()
	config := fmt.Sprintf(`
connection: ["file:%s?mode=memory&cache=shared"]
fieldCount: %d
readAllFields: %t
rdb:
  driver: sqlite3
`, util.RandomString(12), fieldCount, readAllFields)

	client := New([]byte(config))
	require.NoError(t, client.Init())
	t.Cleanup(client.Close)
	return client
}

func fullValues(client *Client, seed string) map[string][]byte {
	values := map[string][]byte{}
	for i := 0; i < client.FieldCount; i++ {
		values[client.fieldName(i)] = []byte(seed + client.fieldName(i))
	}
	return values
}

func TestInsertReadAllRoundTrip(t *testing.T) {
	client := newTestClient(t, 4, true)

	values := fullValues(client, "v-")
	require.Equal(t, abstract.StatusOK, client.Insert("usertable", "user0", values))

	record, st := client.ReadAll("usertable", "user0")
	require.Equal(t, abstract.StatusOK, st)
	assert.Equal(t, []byte("user0"), record[keyColumn])
	for name, value := range values {
		assert.Equal(t, value, record[name])
	}
}

func TestNarrowUpdatePreservesOtherColumns(t *testing.T) {
	client := newTestClient(t, 4, true)

	values := fullValues(client, "old-")
	require.Equal(t, abstract.StatusOK, client.Insert("usertable", "user0", values))
	require.Equal(t, abstract.StatusOK, client.UpdateOne("usertable", "user0", "field1", []byte("new")))

	record, st := client.ReadAll("usertable", "user0")
	require.Equal(t, abstract.StatusOK, st)
	assert.Equal(t, []byte("new"), record["field1"])
	assert.Equal(t, []byte("old-field0"), record["field0"])
	assert.Equal(t, []byte("old-field3"), record["field3"])
}

func TestNullColumnDecodesToExplicitNull(t *testing.T) {
	client := newTestClient(t, 4, true)

	require.Equal(t, abstract.StatusOK, client.UpdateOne("usertable", "user0", "field2", []byte("v")))

	record, st := client.ReadAll("usertable", "user0")
	require.Equal(t, abstract.StatusOK, st)
	assert.Equal(t, []byte("v"), record["field2"])

	value, present := record["field0"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestReadAllMissingKeyIsEmptyRecord(t *testing.T) {
	client := newTestClient(t, 4, true)

	record, st := client.ReadAll("usertable", "missing")
	assert.Equal(t, abstract.StatusOK, st)
	assert.Empty(t, record)
}

func TestDeleteThenReadAll(t *testing.T) {
	client := newTestClient(t, 4, true)

	require.Equal(t, abstract.StatusOK, client.Insert("usertable", "user0", fullValues(client, "v-")))
	require.Equal(t, abstract.StatusOK, client.Delete("usertable", "user0"))

	record, st := client.ReadAll("usertable", "user0")
	assert.Equal(t, abstract.StatusOK, st)
	assert.Empty(t, record)
}

func TestInsertPartialMapFailsWithArityError(t *testing.T) {
	client := newTestClient(t, 4, true)

	st := client.Insert("usertable", "user0", map[string][]byte{
		"field0": []byte("a"),
		"field1": []byte("b"),
	})
	assert.Equal(t, abstract.StatusBadRequest, st)

	record, st := client.ReadAll("usertable", "user0")
	require.Equal(t, abstract.StatusOK, st)
	assert.Empty(t, record, "a rejected insert must not reach the store")
}

func TestScanIsKeyOrderedAndLimited(t *testing.T) {
	client := newTestClient(t, 2, true)

	for _, key := range []string{"user4", "user0", "user3", "user1", "user2"} {
		require.Equal(t, abstract.StatusOK, client.Insert("usertable", key, fullValues(client, key+"-")))
	}

	records, st := client.ScanAll("usertable", "user1", 3)
	require.Equal(t, abstract.StatusOK, st)
	require.Len(t, records, 3)
	assert.Equal(t, []byte("user1"), records[0][keyColumn])
	assert.Equal(t, []byte("user2"), records[1][keyColumn])
	assert.Equal(t, []byte("user3"), records[2][keyColumn])

	records, st = client.ScanAll("usertable", "user4", 10)
	require.Equal(t, abstract.StatusOK, st)
	assert.Len(t, records, 1)

	records, st = client.ScanAll("usertable", "user0", 0)
	require.Equal(t, abstract.StatusOK, st)
	assert.Empty(t, records)
}

func TestPerFieldMode(t *testing.T) {
	client := newTestClient(t, 4, false)

	require.Equal(t, abstract.StatusOK, client.Insert("usertable", "user0", fullValues(client, "v-")))

	record, st := client.ReadOne("usertable", "user0", "field1")
	require.Equal(t, abstract.StatusOK, st)
	assert.Equal(t, abstract.Record{"field1": []byte("v-field1")}, record)

	records, st := client.ScanOne("usertable", "user0", 5, "field2")
	require.Equal(t, abstract.StatusOK, st)
	require.Len(t, records, 1)
	assert.Equal(t, abstract.Record{"field2": []byte("v-field2")}, records[0])

	_, st = client.ReadAll("usertable", "user0")
	assert.Equal(t, abstract.StatusBadRequest, st)

	_, st = client.ReadOne("usertable", "user0", "field9")
	assert.Equal(t, abstract.StatusBadRequest, st)
}
