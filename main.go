package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"ycsbench/benchmark"
	"ycsbench/benchmark/bindings/abstract"
	"ycsbench/benchmark/bindings/cassandra"
	"ycsbench/benchmark/bindings/rdb"
	"ycsbench/benchmark/bindings/riakkv"
	"ycsbench/benchmark/core"
	"ycsbench/util"
	"ycsbench/worker"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type BenchmarkArgs struct {
	Connection   []string
	Time         int
	Transactions int
	Warmup       int
	Cooldown     int
	Runs         int
	NoReload     bool `yaml:"noReload"`
	Workers      []int
	Binding      string
	FileData     []byte // config file contents
	Operations   []worker.Operation
}

type ProcessedResult struct {
	name  string
	rt    float64
	ct    float64
	tps   float64
	ar    float64
	rtP95 float64
}

// Prepare zerolog
func setupLogging(disableLog bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var zlevel zerolog.Level
	if disableLog {
		zlevel = zerolog.Disabled
	} else if level == "info" {
		zlevel = zerolog.InfoLevel
	} else {
		zlevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(zlevel)
}

// Returns a BenchmarkArgs struct with the information in the configFile.
func buildArgs(configFile string) *BenchmarkArgs {
	if configFile == "" {
		log.Fatal("Missing config file.")
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatal(err)
	}

	args := BenchmarkArgs{}
	err = yaml.Unmarshal(data, &args)
	if err != nil {
		log.Fatal(err)
	}
	args.FileData = data

	return &args
}

// Creates and initializes one store client per worker. A failed Init is a
// fatal configuration or compile error, so the run is aborted before any
// operation is issued.
func createClients(nClients int, args *BenchmarkArgs) []abstract.DB {
	clients := []abstract.DB{}

	for i := 0; i < nClients; i++ {
		var db abstract.DB
		switch args.Binding {
		case "cassandra":
			db = cassandra.New(args.FileData)
		case "rdb":
			db = rdb.New(args.FileData)
		case "riak":
			db = riakkv.New(args.FileData)
		default:
			log.Fatalf("Binding '%s' not found.\n", args.Binding)
		}

		util.CheckErr(db.Init())
		clients = append(clients, db)
	}

	return clients
}

func closeClients(clients []abstract.DB) {
	for _, db := range clients {
		db.Close()
	}
}

// Create nWorkers with the respective arguments, clients, and benchmark.
func createWorkers(nWorkers int, args *BenchmarkArgs, clients []abstract.DB, benchmarkFactory func(int) benchmark.Benchmark) []*worker.Worker {
	workers := []*worker.Worker{}

	for i := 0; i < nWorkers; i++ {
		w := worker.NewWorker(i, args.Time, args.Transactions/nWorkers, args.Warmup, args.Cooldown,
			clients[i%len(clients)], args.Operations, benchmarkFactory(i))
		workers = append(workers, w)
	}

	return workers
}

// Computes the average value of a list of results
func avgMetric(results []ProcessedResult, metric string) float64 {
	var total float64

	for _, r := range results {
		switch metric {
		case "rt":
			total += r.rt
		case "ct":
			total += r.ct
		case "tps":
			total += r.tps
		case "ar":
			total += r.ar
		case "rtP95":
			total += r.rtP95
		}
	}

	return total / float64(len(results))
}

// Prints a summary of the results.
// Both the throughput (tps) and response time (rt) consider only the completed operations
func aggregateResults(allResults [][]*worker.BenchmarkResults) map[string]ProcessedResult {
	// metric -> values of each run
	processedResults := map[string][]ProcessedResult{}

	// process the results of all runs
	for _, results := range allResults {
		rts := map[string][]float64{}
		totalRts := map[string]float64{}
		completeCounts := map[string]int{}
		abortCounts := map[string]int{}
		tps := map[string]float64{}
		totalCompleted := 0
		totalAborted := 0
		totalRt := 0.
		totalTps := 0.
		allRts := []float64{}

		// combine the results of all workers
		for _, result := range results {
			for operation, value := range result.Operations {
				rts[operation] = append(rts[operation], value.Rts...)
				totalRts[operation] += value.TotalRt
				completeCounts[operation] += value.CompleteCount
				abortCounts[operation] += value.AbortCount
				tps[operation] += float64(value.CompleteCount) / result.RealDuration
				totalCompleted += value.CompleteCount
				totalAborted += value.AbortCount
				totalRt += value.TotalRt
				totalTps += float64(value.CompleteCount) / result.RealDuration
				allRts = append(allRts, value.Rts...)
			}
		}

		// add the run averages to all averages
		for k := range rts {
			processedResults[k] = append(processedResults[k], ProcessedResult{
				name:  k,
				rt:    totalRts[k] / float64(completeCounts[k]),
				ct:    float64(completeCounts[k]),
				tps:   float64(tps[k]),
				ar:    float64(abortCounts[k]) / float64(abortCounts[k]+completeCounts[k]),
				rtP95: util.Percentile(rts[k], 95),
			})
		}

		// average of all operations
		processedResults["total"] = append(processedResults["total"], ProcessedResult{
			name:  "total",
			rt:    totalRt / float64(totalCompleted),
			ct:    float64(totalCompleted),
			tps:   totalTps,
			ar:    float64(totalAborted) / (float64(totalAborted + totalCompleted)),
			rtP95: util.Percentile(allRts, 95),
		})
	}

	aggregated := map[string]ProcessedResult{}
	for k, v := range processedResults {
		aggregated[k] = ProcessedResult{
			rt:    avgMetric(v, "rt"),
			tps:   avgMetric(v, "tps"),
			ar:    avgMetric(v, "ar"),
			ct:    avgMetric(v, "ct"),
			rtP95: avgMetric(v, "rtP95"),
		}
	}

	return aggregated
}

func printSummary(aggregated map[string]ProcessedResult,
	args *BenchmarkArgs,
	nWorkers int,
	benchmarkConfigs map[string]string,
	benchmarkMetrics map[string]string,
	firstLine bool,
) {
	sortedConfigs := []string{}
	for k := range benchmarkConfigs {
		sortedConfigs = append(sortedConfigs, k)
	}
	sort.Strings(sortedConfigs)

	sortedMetrics := []string{}
	for k := range benchmarkMetrics {
		sortedMetrics = append(sortedMetrics, k)
	}
	sort.Strings(sortedMetrics)

	// CSV header
	if firstLine {
		if len(sortedMetrics) > 0 {
			fmt.Println("Csv:binding,time,runs,noReload,workers,sites," +
				strings.Join(sortedConfigs, ",") + "," + strings.Join(sortedMetrics, ",") + ",rt,tps,ct,ar,rtP95")
		} else {
			fmt.Println("Csv:binding,time,runs,noReload,workers,sites," +
				strings.Join(sortedConfigs, ",") + ",rt,tps,ct,ar,rtP95")
		}
		fmt.Println("CsvOps:binding,time,runs,noReload,workers,sites," +
			strings.Join(sortedConfigs, ",") + ",operation,rt,tps,ct,ar,rtP95")
	}

	// string for the benchmark specific metrics ("Csv:" prefix)
	csv := fmt.Sprintf("Csv:%s,%d,%d,%t,%d,%d",
		args.Binding, args.Time, args.Runs, args.NoReload, nWorkers, len(args.Connection))
	// string for the operations ("CsvOps:" prefix)
	csvOps := fmt.Sprintf("CsvOps:%s,%d,%d,%t,%d,%d",
		args.Binding, args.Time, args.Runs, args.NoReload, nWorkers, len(args.Connection))
	// string with metrics in a key-value format to ease reading
	kv := fmt.Sprintf("binding: %s\ntime: %d\nruns: %d\nnoReload: %t\nworkers: %d\nsites: %d",
		args.Binding, args.Time, args.Runs, args.NoReload, nWorkers, len(args.Connection))

	// write benchmark-specific configs
	for _, config := range sortedConfigs {
		csv += fmt.Sprintf(",%s", benchmarkConfigs[config])
		csvOps += fmt.Sprintf(",%s", benchmarkConfigs[config])
		kv += fmt.Sprintf("\n%s: %s", config, benchmarkConfigs[config])
	}

	// write benchmark-specific metrics
	for _, metric := range sortedMetrics {
		csv += fmt.Sprintf(",%s", benchmarkMetrics[metric])
		kv += fmt.Sprintf("\n%s: %s", metric, benchmarkMetrics[metric])
	}

	// write the results of each operation
	for metric, result := range aggregated {
		if metric == "total" {
			kv += fmt.Sprintf("\nrt: %.6f", result.rt)
			kv += fmt.Sprintf("\ntps: %.6f", result.tps)
			kv += fmt.Sprintf("\nct: %.6f", result.ct)
			kv += fmt.Sprintf("\nar: %.6f", result.ar)
			kv += fmt.Sprintf("\nrtP95: %.6f", result.rtP95)
			csv += fmt.Sprintf(",%.6f,%.3f,%.0f,%.6f,%.6f", result.rt, result.tps, result.ct, result.ar, result.rtP95)
		}
		fmt.Println(csvOps + fmt.Sprintf(",%s,%.6f,%.3f,%.0f,%.6f,%.6f", metric, result.rt, result.tps, result.ct, result.ar, result.rtP95))
	}

	fmt.Println(csv)
	fmt.Println(kv)
}

func main() {
	disableLog := flag.Bool("no-log", false, "Disables the log")
	configFile := flag.String("conf", "", "Benchmark config file")
	logLevel := flag.String("level", "debug", "Log level (info|debug)")
	flag.Parse()

	setupLogging(*disableLog, *logLevel)
	args := buildArgs(*configFile)
	benchmarkFactory := func(id int) benchmark.Benchmark { return core.New(id, args.FileData) }
	c := make(chan *worker.BenchmarkResults)

	for i, nWorkers := range args.Workers {
		allResults := [][]*worker.BenchmarkResults{}
		configs := map[string]string{}
		metrics := map[string]string{}

		zlog.Info().Int("workers", nWorkers).Msg("Run started")

		for j := 0; j < args.Runs; j++ {
			startTime := util.EpochSeconds()
			clients := createClients(nWorkers, args)
			workers := createWorkers(nWorkers, args, clients, benchmarkFactory)
			bench := benchmarkFactory(-1)
			bench.Setup(clients)

			if j == 0 || !args.NoReload {
				bench.Populate(clients)
			}

			fmt.Println("Running")
			for _, w := range workers {
				go w.Run(c)
			}

			results := []*worker.BenchmarkResults{}
			for k := 0; k < nWorkers; k++ {
				results = append(results, <-c)
			}

			allResults = append(allResults, results)
			if len(configs) == 0 {
				configs = workers[0].GetConfigs()
				metrics = workers[0].GetMetrics()
			}

			fmt.Printf("setupTime=%v\n", (util.EpochSeconds() - startTime - results[0].RealDuration))

			bench.Finalize(clients)
			closeClients(clients)
		}

		aggregated := aggregateResults(allResults)
		printSummary(aggregated, args, nWorkers, configs, metrics, i == 0)

		zlog.Info().Int("workers", nWorkers).Msg("Run ended")
	}
}
