// cmd/tools/run-cases/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mortgage-underwriting/internal/app"
	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"
)

func main() {
	casesPath := flag.String("cases", "", "Path to the test cases file (.json, .yaml or .yml)")
	configPath := flag.String("config", "", "Optional config file; environment configuration is used when empty")
	concurrency := flag.Int("concurrency", 1, "Number of cases evaluated at once")
	showMemos := flag.Bool("memos", true, "Print the decision memo of every case")
	flag.Parse()

	if *casesPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -cases is required.")
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*casesPath, *configPath, *concurrency, *showMemos))
}

func run(casesPath, configPath string, concurrency int, showMemos bool) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, "stderr")

	cases, err := LoadCases(casesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading test cases: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building engine: %v\n", err)
		return 1
	}
	defer a.Close()

	results := RunCases(ctx, a.Service, cases, concurrency)

	fmt.Println("Underwriting Results")
	allOK := PrintTable(os.Stdout, results)
	if showMemos {
		PrintMemos(os.Stdout, results)
	}

	if !allOK {
		return 2
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}
