// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Command cansig checks CAN signal schemas, generates codecs from them and
// decodes captured traffic with them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/config"
	"github.com/MultiTechSystems/can-signal-schema/internal/artifact"
	"github.com/MultiTechSystems/can-signal-schema/schema"
	"github.com/MultiTechSystems/can-signal-schema/validate"
)

// exitSchema is returned for schemas that fail validation.
const exitSchema = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var se *schema.SchemaError
		if errors.As(err, &se) {
			os.Exit(exitSchema)
		}
		os.Exit(1)
	}
}

// env is what every command runs with.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

type command struct {
	name    string
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet)
	run     func(e *env, fs *pflag.FlagSet) error
}

var commands = []command{
	checkCommand,
	generateCommand,
	planCommand,
	decodeCommand,
	encodeCommand,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(stderr)
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet("cansig "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  cansig %s %s\n\nFlags:\n%s", cmd.name, cmd.usage, fs.FlagUsages())
	}
	fs.String("config", "cansig.yaml", "configuration file")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
	fs.Int("workers", 0, "concurrent message planning (0 means one per CPU)")
	fs.String("bit-numbering", "", "default big-endian start bit numbering: dbc or sequential")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(stderr)
	slog.SetDefault(logger)

	return cmd.run(&env{ctx: ctx, cfg: cfg, logger: logger, stdin: stdin, stdout: stdout}, fs)
}

// loadConfig reads the configuration file and applies explicitly set flags
// over it.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	override := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	override("log-level", &cfg.Log.Level)
	override("log-format", &cfg.Log.Format)
	override("bit-numbering", &cfg.BitNumbering)
	override("target", &cfg.Target)
	override("package", &cfg.Package)
	override("output", &cfg.Output)
	override("plan", &cfg.Plan)
	if fs.Changed("workers") {
		cfg.Workers, _ = fs.GetInt("workers")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadSchema reads a YAML/JSON schema, or a binary signal table when the
// file ends in .bin.
func (e *env) loadSchema(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return schema.ParseBinarySchema(data)
	}
	return schema.ParseSchemaWith(string(data), e.cfg.BitNumbering)
}

// buildPlan loads and plans the schema at path.
func (e *env) buildPlan(path string) (*codec.Plan, error) {
	s, err := e.loadSchema(path)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("schema loaded", "path", path, "schema", s.Name, "messages", len(s.Messages))

	return codec.Build(e.ctx, s, codec.Options{
		Validate: validate.Options{ReservedMarkers: e.cfg.ReservedMarkers},
		Workers:  e.cfg.Workers,
		Logger:   e.logger,
	})
}

// planFor returns the plan a command works on: the CBOR artifact named by
// the plan setting, or the plan of the schema argument.
func (e *env) planFor(args []string) (*codec.Plan, error) {
	switch {
	case len(args) > 0:
		return e.buildPlan(args[0])
	case e.cfg.Plan != "":
		return artifact.ReadFile(e.cfg.Plan)
	}
	return nil, errors.New("need a schema argument or --plan")
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `cansig - CAN signal schema codec generator

Usage:
  cansig <command> [flags] [args]

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprint(w, `
Every command reads cansig.yaml from the working directory when present.
Run "cansig <command> --help" for the flags of a command.
`)
}
