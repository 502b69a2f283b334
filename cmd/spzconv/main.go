package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/term"

	"github.com/wippyai/spzconv/codec"
	"github.com/wippyai/spzconv/config"
	"github.com/wippyai/spzconv/convert"
	"github.com/wippyai/spzconv/engine"
)

const usage = `Usage: spzconv -codec <spz.wasm> [flags] files...
       spzconv -codec <spz.wasm> -mode compress -o clouds.zip *.ply
       spzconv -codec <spz.wasm> -mode decompress -normals -out-dir ply/ *.spz
       spzconv -codec <spz.wasm> -i files...   (interactive mode)
       spzconv -init-config spzconv.yaml

Flags:
`

// options is everything main needs after flag parsing.
type options struct {
	cfg         config.Config
	files       []string
	interactive bool
	initConfig  string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if opts.initConfig != "" {
		if err := config.Write(&opts.cfg, opts.initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", opts.initConfig)
		return
	}

	if opts.cfg.Codec == "" || len(opts.files) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if opts.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(opts.cfg.Log, os.Stderr, opts.interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	engine.SetLogger(logger)
	convert.SetLogger(logger)

	ctx := context.Background()
	var failed int
	if opts.interactive {
		failed, err = runInteractive(ctx, opts)
	} else {
		failed, err = run(ctx, opts, os.Stdout)
	}
	closeLog()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// parseFlags loads the config file named by -config and applies the flags
// that were set on the command line on top of it.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("spzconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var (
		codecPath   = fs.String("codec", "", "Path to the SPZ codec wasm module")
		cfgPath     = fs.String("config", "", "YAML configuration file")
		mode        = fs.String("mode", config.DefaultMode, "compress, decompress or auto (.spz inputs decompress)")
		quality     = fs.Int("quality", int(codec.DefaultQuality), "Compression level (1-22)")
		normals     = fs.Bool("normals", false, "Include normals when decompressing")
		output      = fs.String("o", "", "Write all outputs into this store-only ZIP")
		outDir      = fs.String("out-dir", "", "Write outputs into this directory (default: next to each input)")
		memPages    = fs.Uint("memory-pages", 0, "Codec memory limit in 64KB pages (0 = runtime default)")
		logLevel    = fs.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
		logFormat   = fs.String("log-format", config.DefaultLogFormat, "Log format: console or json")
		logFile     = fs.String("log-file", "", "Also write JSON logs to this rotating file")
		initConfig  = fs.String("init-config", "", "Write the effective configuration to this file and exit")
		interactive = fs.Bool("i", false, "Interactive mode with TUI")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}

	var overrideErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "codec":
			cfg.Codec = *codecPath
		case "mode":
			cfg.Mode = *mode
		case "quality":
			if *quality < int(codec.MinQuality) || *quality > int(codec.MaxQuality) {
				overrideErr = fmt.Errorf("-quality must be between %d and %d, got %d", codec.MinQuality, codec.MaxQuality, *quality)
				return
			}
			cfg.Quality = int32(*quality)
		case "normals":
			cfg.IncludeNormals = *normals
		case "o":
			cfg.Output, cfg.OutDir = *output, ""
		case "out-dir":
			cfg.OutDir, cfg.Output = *outDir, ""
		case "memory-pages":
			if *memPages > math.MaxUint32 {
				overrideErr = fmt.Errorf("-memory-pages too large: %d", *memPages)
				return
			}
			cfg.MemoryLimitPages = uint32(*memPages)
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "log-file":
			cfg.Log.File = *logFile
		}
	})
	if overrideErr != nil {
		return nil, overrideErr
	}
	if *output != "" && *outDir != "" {
		return nil, fmt.Errorf("-o and -out-dir are mutually exclusive")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return &options{
		cfg:         *cfg,
		files:       fs.Args(),
		interactive: *interactive,
		initConfig:  *initConfig,
	}, nil
}
