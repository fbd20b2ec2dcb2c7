package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const appPort = 8081

var chains = []string{"Ethereum", "Polygon", "Binance Smart Chain", "Solana"}

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 200, "Requests per second")
	mode := flag.String("mode", "mixed", "Traffic shape: read, write or mixed")
	replay := flag.Float64("replay", 0.1, "Share of writes that reuse an Idempotency-Key")
	store := flag.String("store", "memory", "Store driver for the server under test (memory, sqlite)")
	flag.Parse()

	fmt.Println("Building application...")
	buildCmd := exec.Command("go", "build", "-o", "bin/server", "./cmd/server")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server", "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SERVER_PORT=%d", appPort),
		"STORE_DRIVER="+*store,
		"STORE_DSN=bench.db",
		"RATE_LIMIT_ENABLED=false",
		"LOG_LEVEL=error",
	)

	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = os.Remove("bench.db")
	}()

	base := fmt.Sprintf("http://localhost:%d", appPort)
	waitForApp(base + "/health")

	fmt.Printf("Running %s benchmark against %s store: %s duration, %d req/s\n", *mode, *store, *duration, *rate)

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics

	for res := range attacker.Attack(newTargeter(base, *mode, *replay), vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Printf("Status codes:    %v\n", metrics.StatusCodes)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")

		uniqueErrors := make(map[string]bool)
		count := 0
		for _, msg := range metrics.Errors {
			if !uniqueErrors[msg] && count < 5 {
				fmt.Println(msg)

				uniqueErrors[msg] = true
				count++
			}
		}
	}
}

// newTargeter alternates catalog reads with deployment writes according to mode.
func newTargeter(base, mode string, replay float64) vegeta.Targeter {
	var seq atomic.Int64

	return func(t *vegeta.Target) error {
		n := seq.Add(1)
		write := mode == "write" || (mode == "mixed" && n%2 == 0)

		t.Header = http.Header{"Content-Type": []string{"application/json"}}

		if !write {
			t.Method = http.MethodGet
			t.URL = base + "/api/v1/models"
			if n%3 == 0 {
				t.URL = fmt.Sprintf("%s/api/v1/deployments?userId=0xbench%d", base, n%16)
			}
			t.Body = nil
			return nil
		}

		t.Method = http.MethodPost
		t.URL = base + "/api/v1/deployments"
		t.Body = []byte(fmt.Sprintf(`{"modelId":"%d","userId":"0xbench%d","chain":"%s","price":"2.5"}`,
			n%3+1, n%16, chains[n%int64(len(chains))]))

		key := fmt.Sprintf("bench-%d", n)
		if rand.Float64() < replay {
			// a small fixed pool of keys forces replays
			key = fmt.Sprintf("bench-replay-%d", n%8)
			t.Body = []byte(`{"modelId":"1","userId":"0xbench0","chain":"Ethereum","price":"2.5"}`)
		}
		t.Header.Set("Idempotency-Key", key)
		return nil
	}
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}
