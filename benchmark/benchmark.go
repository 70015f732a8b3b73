package benchmark

import "ycsbench/benchmark/bindings/abstract"

type Benchmark interface {
	// Called once at the start of the run, to setup any resources required
	Setup(dbs []abstract.DB)
	// Populates the store with the initial records
	Populate(dbs []abstract.DB)
	// Returns the operation mix (called for each worker, with its own client)
	Prepare(db abstract.DB) map[string]func() error
	// Returns the benchmark-specific configurations
	GetConfigs() map[string]string
	// Returns the benchmark-specific metrics
	GetMetrics(db abstract.DB) map[string]string
	// Called once at the end of the run, to close any resources required
	Finalize(dbs []abstract.DB)
}
