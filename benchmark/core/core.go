// Package core is the standard record workload: a weighted mix of reads,
// scans, inserts, updates and deletes over a table of recordCount wide rows.
package core

import (
	"math/rand"
	"strconv"
	"sync"

	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/util"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Core struct {
	id             int
	RecordCount    int    `yaml:"recordCount"`
	FieldCount     int    `yaml:"fieldCount"`
	FieldLength    int    `yaml:"fieldLength"`
	FieldPrefix    string `yaml:"fieldPrefix"`
	Table          string `yaml:"table"`
	ReadAllFields  bool   `yaml:"readAllFields"`
	WriteAllFields bool   `yaml:"writeAllFields"`
	MaxScanLength  int    `yaml:"maxScanLength"`
}

func New(id int, configData []byte) *Core {
	core := Core{
		RecordCount:   1000,
		FieldCount:    10,
		FieldLength:   100,
		FieldPrefix:   "field",
		Table:         "usertable",
		ReadAllFields: true,
		MaxScanLength: 100,
	}
	util.CheckErr(yaml.Unmarshal(configData, &core))
	core.id = id
	return &core
}

func (c *Core) log(msg string) {
	zlog.Info().Str("benchmark", "core").Int("id", c.id).Msg(msg)
}

func (c *Core) fieldName(i int) string {
	return c.FieldPrefix + strconv.Itoa(i)
}

// Key of a record in the populated range
func (c *Core) randomKey() string {
	return "user" + strconv.Itoa(rand.Intn(c.RecordCount))
}

// Key for a new record; unique across uncoordinated workers
func (c *Core) insertKey() string {
	return "user-" + uuid.NewString()
}

func (c *Core) randomField() string {
	return c.fieldName(rand.Intn(c.FieldCount))
}

func (c *Core) randomValue() []byte {
	return []byte(util.RandomString(c.FieldLength))
}

// Values for a full-row write: every field of the schema
func (c *Core) buildValues() map[string][]byte {
	values := make(map[string][]byte, c.FieldCount)
	for i := 0; i < c.FieldCount; i++ {
		values[c.fieldName(i)] = c.randomValue()
	}
	return values
}

func (c *Core) scanLength() int {
	return rand.Intn(c.MaxScanLength) + 1
}

func (c *Core) Setup(dbs []abstract.DB) {
	for _, db := range dbs {
		if tc, ok := db.(abstract.TableCreator); ok {
			util.CheckErr(tc.CreateTable())
		}
	}
}

// Populate inserts the initial records through a single client; the store
// replicates them to the other sites.
func (c *Core) Populate(dbs []abstract.DB) {
	c.log("Populating")
	db := dbs[0]

	semaphore := make(chan struct{}, 32)
	var wg sync.WaitGroup
	for i := 0; i < c.RecordCount; i++ {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int) {
			defer wg.Done()
			key := "user" + strconv.Itoa(i)
			util.CheckErr(db.Insert(c.Table, key, c.buildValues()).Err())
			<-semaphore
		}(i)
	}
	wg.Wait()
	c.log("Populate done")
}

func (c *Core) Prepare(db abstract.DB) map[string]func() error {
	operations := map[string]func() error{}

	if c.ReadAllFields {
		operations["read"] = func() error {
			_, st := db.ReadAll(c.Table, c.randomKey())
			return st.Err()
		}
		operations["scan"] = func() error {
			_, st := db.ScanAll(c.Table, c.randomKey(), c.scanLength())
			return st.Err()
		}
	} else {
		operations["read"] = func() error {
			_, st := db.ReadOne(c.Table, c.randomKey(), c.randomField())
			return st.Err()
		}
		operations["scan"] = func() error {
			_, st := db.ScanOne(c.Table, c.randomKey(), c.scanLength(), c.randomField())
			return st.Err()
		}
	}

	if c.WriteAllFields {
		operations["update"] = func() error {
			return db.UpdateAll(c.Table, c.randomKey(), c.buildValues()).Err()
		}
	} else {
		operations["update"] = func() error {
			return db.UpdateOne(c.Table, c.randomKey(), c.randomField(), c.randomValue()).Err()
		}
	}

	operations["insert"] = func() error {
		return db.Insert(c.Table, c.insertKey(), c.buildValues()).Err()
	}
	operations["delete"] = func() error {
		return db.Delete(c.Table, c.randomKey()).Err()
	}

	return operations
}

func (c *Core) GetConfigs() map[string]string {
	return map[string]string{
		"recordCount":   strconv.Itoa(c.RecordCount),
		"fieldCount":    strconv.Itoa(c.FieldCount),
		"fieldLength":   strconv.Itoa(c.FieldLength),
		"readAllFields": strconv.FormatBool(c.ReadAllFields),
		"maxScanLength": strconv.Itoa(c.MaxScanLength),
	}
}

func (c *Core) GetMetrics(db abstract.DB) map[string]string {
	return map[string]string{}
}

func (c *Core) Finalize(dbs []abstract.DB) {}
