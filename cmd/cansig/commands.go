// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/emit"
	"github.com/MultiTechSystems/can-signal-schema/internal/artifact"
	"github.com/MultiTechSystems/can-signal-schema/internal/capture"
)

var checkCommand = command{
	name:    "check",
	summary: "validate a schema and list its warnings",
	usage:   "[flags] <schema>",
	run:     runCheck,
}

func runCheck(e *env, fs *pflag.FlagSet) error {
	if fs.NArg() != 1 {
		return errors.New("check: need exactly one schema")
	}
	plan, err := e.buildPlan(fs.Arg(0))
	if err != nil {
		return err
	}

	signals := 0
	for _, mp := range plan.Messages {
		signals += len(mp.DecodeOps)
	}
	fmt.Fprintf(e.stdout, "%s: %d messages, %d signals, %d warnings\n",
		fs.Arg(0), len(plan.Messages), signals, len(plan.Warnings))
	for _, w := range plan.Warnings {
		fmt.Fprintf(e.stdout, "  %s\n", w)
	}
	return nil
}

var generateCommand = command{
	name:    "generate",
	summary: "generate Go, C or a binary signal table from a schema",
	usage:   "[flags] <schema>",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("target", "t", "", "target: go, c or binary")
		fs.StringP("package", "p", "", "Go package name or C file basename")
		fs.StringP("output", "o", "", "output directory")
		fs.String("plan", "", "also write the CBOR plan artifact to this path")
	},
	run: runGenerate,
}

func runGenerate(e *env, fs *pflag.FlagSet) error {
	if fs.NArg() != 1 {
		return errors.New("generate: need exactly one schema")
	}
	target, err := emit.ParseTarget(e.cfg.Target)
	if err != nil {
		return err
	}
	plan, err := e.buildPlan(fs.Arg(0))
	if err != nil {
		return err
	}

	arts, err := emit.Generate(plan, target, emit.Options{Package: e.cfg.Package})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.Output, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, a := range arts {
		path := filepath.Join(e.cfg.Output, a.Name)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.Name, err)
		}
		e.logger.Info("wrote artifact", "path", path, "bytes", len(a.Data))
		fmt.Fprintln(e.stdout, path)
	}

	if e.cfg.Plan != "" {
		if err := artifact.WriteFile(e.cfg.Plan, plan); err != nil {
			return err
		}
		e.logger.Info("wrote plan", "path", e.cfg.Plan)
	}
	return nil
}

var planCommand = command{
	name:    "plan",
	summary: "write the CBOR codec plan of a schema",
	usage:   "[flags] <schema>",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("output", "o", "", "plan file (default <schema name>.plan)")
	},
	run: runPlan,
}

func runPlan(e *env, fs *pflag.FlagSet) error {
	if fs.NArg() != 1 {
		return errors.New("plan: need exactly one schema")
	}
	plan, err := e.buildPlan(fs.Arg(0))
	if err != nil {
		return err
	}

	path, _ := fs.GetString("output")
	if path == "" {
		name := plan.Schema
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(fs.Arg(0)), filepath.Ext(fs.Arg(0)))
		}
		path = name + ".plan"
	}
	if err := artifact.WriteFile(path, plan); err != nil {
		return err
	}
	e.logger.Info("wrote plan", "path", path, "messages", len(plan.Messages))
	fmt.Fprintln(e.stdout, path)
	return nil
}

var decodeCommand = command{
	name:    "decode",
	summary: "decode candump or SavvyCAN CSV traffic from stdin",
	usage:   "[flags] [<schema>]",
	flags: func(fs *pflag.FlagSet) {
		fs.String("plan", "", "decode with this CBOR plan instead of a schema")
		fs.Bool("unknown", false, "also print frames with no message in the schema")
	},
	run: runDecode,
}

func runDecode(e *env, fs *pflag.FlagSet) error {
	plan, err := e.planFor(fs.Args())
	if err != nil {
		return err
	}
	showUnknown, _ := fs.GetBool("unknown")

	r := capture.NewReader(e.stdin)
	var decoded, unknown, rejected int
	for {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		mp, values, err := plan.DecodeFrame(f.ID, f.Extended, f.Data)
		switch {
		case errors.Is(err, codec.ErrUnknownMessage):
			unknown++
			if showUnknown {
				fmt.Fprintf(e.stdout, "%.6f 0x%X ? % X\n", f.Timestamp, f.ID, f.Data)
			}
			continue
		case err != nil:
			rejected++
			e.logger.Debug("frame rejected", "id", fmt.Sprintf("0x%X", f.ID), "error", err)
			continue
		}
		decoded++
		fmt.Fprintln(e.stdout, formatDecoded(f, mp, values))
	}

	e.logger.Info("capture decoded",
		"format", r.Format().String(),
		"decoded", decoded,
		"unknown", unknown,
		"rejected", rejected,
		"skipped", r.Skipped())
	return nil
}

// formatDecoded prints signals in message order, leaving out inactive mux
// branches.
func formatDecoded(f capture.Frame, mp *codec.MessagePlan, values map[string]codec.Value) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.6f 0x%X %s", f.Timestamp, f.ID, mp.Name)
	for _, op := range mp.DecodeOps {
		v, ok := values[op.Target]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", op.Target, v)
	}
	return b.String()
}

var encodeCommand = command{
	name:    "encode",
	summary: "encode physical values into a candump line",
	usage:   "[flags] [<schema>] <message> <signal>=<value>...",
	flags: func(fs *pflag.FlagSet) {
		fs.String("plan", "", "encode with this CBOR plan instead of a schema")
	},
	run: runEncode,
}

func runEncode(e *env, fs *pflag.FlagSet) error {
	args := fs.Args()
	var schemaArgs []string
	if e.cfg.Plan == "" && len(args) > 0 {
		schemaArgs, args = args[:1], args[1:]
	}
	if len(args) == 0 {
		return errors.New("encode: need a message name")
	}
	plan, err := e.planFor(schemaArgs)
	if err != nil {
		return err
	}

	mp, ok := plan.MessageByName(args[0])
	if !ok {
		return fmt.Errorf("encode: %w: %q", codec.ErrUnknownMessage, args[0])
	}
	known := make(map[string]bool, len(mp.EncodeOps))
	for _, op := range mp.EncodeOps {
		if !op.Constant {
			known[op.Source] = true
		}
	}

	values := make(map[string]float64, len(args)-1)
	for _, kv := range args[1:] {
		name, text, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("encode: %q is not signal=value", kv)
		}
		if !known[name] {
			return fmt.Errorf("encode: %s has no signal %q", mp.Name, name)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("encode: %s: %w", name, err)
		}
		values[name] = v
	}

	id, frame, err := plan.EncodeFrame(mp.Name, values)
	if err != nil {
		return err
	}
	if mp.Extended {
		fmt.Fprintf(e.stdout, "%08X#%X\n", id, frame[:])
	} else {
		fmt.Fprintf(e.stdout, "%03X#%X\n", id, frame[:])
	}
	return nil
}
