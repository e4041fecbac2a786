package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "embed"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/ripple/internal/app"
	"github.com/tigerroll/ripple/internal/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration
// file. It is the configuration baseline; environment variables and the .env
// file override it at startup.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

const usage = `Usage: ripple [flags] <object-type> <field,field,...> <prompt> <input.csv>

Fetches records of <object-type> matching the filter values in <input.csv>,
combines the listed fields per record, sends each combination to the
completion backend with <prompt>, and appends the outcomes to the output CSV.
Rerunning with the same output file resumes where the previous run stopped.

Flags:
`

// propertyFlags collects repeated key=value flag occurrences.
type propertyFlags map[string]string

func (p propertyFlags) String() string {
	return fmt.Sprintf("%v", map[string]string(p))
}

func (p propertyFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	p[key] = val
	return nil
}

// main is the entry point of the application.
// It parses the command line, installs signal handling for graceful stop,
// and runs the pipeline.
func main() {
	outputPath := flag.String("output", "outcomes.csv", "output CSV path, appended across runs")
	backend := flag.String("backend", "", "completion backend override (http or gemini)")
	exportParquet := flag.Bool("export-parquet", false, "export a Parquet artifact after a completed run")
	envFilePath := flag.String("env", ".env", "path of the .env file")
	batchProperties := make(propertyFlags)
	flag.Var(batchProperties, "set", "batch setting override as key=value (e.g. -set chunk_size=100), repeatable")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 4 {
		flag.Usage()
		os.Exit(2)
	}

	fields := make([]string, 0)
	for _, field := range strings.Split(args[1], ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		fmt.Fprintln(os.Stderr, "ripple: at least one field name is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	opts := app.Options{
		Object:         args[0],
		Fields:         fields,
		Prompt:         args[2],
		InputPath:      args[3],
		OutputPath:     *outputPath,
		Backend:        *backend,
		ExportParquet:  *exportParquet,
		EnvFilePath:    *envFilePath,
		BatchOverrides: batchProperties,
	}

	os.Exit(app.RunApplication(ctx, opts, embeddedConfig))
}
