package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/artpar/servicemeta/internal/core/meta"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run serves the API, or with -check / -validate works on the services
// catalog only and exits.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("servicemeta", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	check := fs.Bool("check", false, "Load the services directory, list the services and exit")
	validate := fs.String("validate", "", "Validate JSON params read from stdin against a service and print the materialized config")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Fprintf(stdout, "servicemeta %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	if *check || *validate != "" {
		// stdout carries the result, logs go to stderr.
		logger := newLogger(cfg, stderr)
		registry, _, err := loadServices(cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "services error: %v\n", err)
			return ExitServicesError
		}
		if *check {
			for _, name := range registry.Names() {
				fmt.Fprintln(stdout, name)
			}
			return ExitSuccess
		}
		return validateParams(registry, *validate, stdin, stdout, stderr)
	}

	logger := SetupLogger(cfg)
	logger.Info("starting servicemeta",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", serverErrorAttrs(err)...)
		return exitCode(err)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server error", serverErrorAttrs(err)...)
		return exitCode(err)
	}

	return ExitSuccess
}

// validateParams runs one validator on params read as a JSON object.
func validateParams(registry *meta.Registry, service string, stdin io.Reader, stdout, stderr io.Writer) int {
	v, err := registry.Lookup(service)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitServicesError
	}

	dec := json.NewDecoder(stdin)
	dec.UseNumber()
	var params meta.Params
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(stderr, "invalid params: %v\n", err)
		return ExitValidationError
	}
	if params == nil {
		params = meta.Params{}
	}

	cfg, err := v.Validate(params)
	if err != nil {
		if kind, ok := meta.KindOf(err); ok {
			fmt.Fprintf(stderr, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintf(stderr, "validate %s: %v\n", service, err)
		}
		return ExitValidationError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitValidationError
	}
	return ExitSuccess
}

func exitCode(err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}

func serverErrorAttrs(err error) []any {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return []any{"error", sErr.Err, "operation", sErr.Op}
	}
	return []any{"error", err}
}
