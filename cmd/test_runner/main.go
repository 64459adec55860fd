package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	race       = flag.Bool("race", false, "enable the race detector (RunMany and the cache are concurrent)")
	cover      = flag.String("cover", "", "write a coverage profile to this file")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	pkgs       = flag.String("pkg", "./...", "comma separated packages to test")
	postgres   = flag.String("postgres", "", "PostgreSQL DSN for the run repository integration test")
	redisAddr  = flag.String("redis", "", "Redis address for the kline cache integration test")
)

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover != "" {
		args = append(args, "-coverprofile="+*cover)
	}
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}
	for _, p := range strings.Split(*pkgs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			args = append(args, p)
		}
	}

	cmd := exec.Command("go", args...)

	// Integration tests skip themselves unless these are set
	env := os.Environ()
	if *postgres != "" {
		env = append(env, "POSTGRES_DSN="+*postgres)
	}
	if *redisAddr != "" {
		env = append(env, "REDIS_ADDR="+*redisAddr)
	}
	cmd.Env = env

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
	if *cover != "" {
		fmt.Printf("Coverage profile written to %s (view with: go tool cover -html=%s)\n", *cover, *cover)
	}
}
