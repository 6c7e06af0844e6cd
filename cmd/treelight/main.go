// Package main is the treelight command: syntax-highlight files to ANSI on
// stdout using the embedded parser engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mosaicterm/treelight/internal/syntax/client"
	"github.com/mosaicterm/treelight/internal/syntax/language"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	switch opts.logLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	c := client.New(
		client.WithDataRoot(opts.dataRoot),
		client.WithFiletypes(language.DefaultConfigs()...),
		client.WithClientLogger(logger),
	)
	defer c.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := c.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	if opts.stats {
		defer printStats(ctx, c)
	}

	for _, path := range flag.Args() {
		if err := highlightFile(ctx, c, path, opts.filetype); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			return 1
		}
	}
	return 0
}

func highlightFile(ctx context.Context, c *client.Client, path, forcedFiletype string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	filetype := forcedFiletype
	if filetype == "" {
		filetype = language.DetectFiletype(path)
	}
	if filetype == "" {
		// Unknown filetype: pass the text through unstyled.
		_, err = os.Stdout.Write(data)
		return err
	}

	caps, err := c.HighlightOnce(ctx, string(data), filetype)
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(render(string(data), caps))
	return err
}

func printStats(ctx context.Context, c *client.Client) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "parse: avg %s over %d samples\n",
		time.Duration(stats.AvgParseNanos), stats.ParseSamples)
	fmt.Fprintf(os.Stderr, "query: avg %s over %d samples\n",
		time.Duration(stats.AvgQueryNanos), stats.QuerySamples)
}

type options struct {
	filetype string
	dataRoot string
	logLevel string
	timeout  time.Duration
	stats    bool
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var listFiletypes bool

	flag.StringVar(&opts.filetype, "filetype", "", "Force a filetype instead of detecting from the file name")
	flag.StringVar(&opts.filetype, "t", "", "Force a filetype (shorthand)")
	flag.StringVar(&opts.dataRoot, "data-root", "", "Directory holding query assets")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.BoolVar(&opts.stats, "stats", false, "Print parse/query timing statistics to stderr")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&listFiletypes, "list", false, "List built-in filetypes")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Treelight - terminal syntax highlighter\n\n")
		fmt.Fprintf(os.Stderr, "Usage: treelight [options] files...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  treelight main.go           Highlight a file\n")
		fmt.Fprintf(os.Stderr, "  treelight -t json data.txt  Force a filetype\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("Treelight %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	if listFiletypes {
		for _, cfg := range language.DefaultConfigs() {
			fmt.Println(cfg.Filetype)
		}
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	return opts
}
