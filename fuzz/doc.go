// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package fuzz holds fuzz tests across the layout resolver, the frame codec
// and the binary signal table reader.
//
// Run with:
//
//	go test ./fuzz -fuzz=FuzzResolve -fuzztime=60s
//	go test ./fuzz -fuzz=FuzzInsertExtract -fuzztime=60s
//	go test ./fuzz -fuzz=FuzzDecodeEncode -fuzztime=60s
//	go test ./fuzz -fuzz=FuzzParseBinarySchema -fuzztime=60s
package fuzz
