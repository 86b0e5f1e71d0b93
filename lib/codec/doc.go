// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding shared by the mkbox launcher
// and the sandbox init it re-executes.
//
// The two halves of mkbox are the same binary running in different
// namespaces, and they exchange exactly two messages: the launcher sends
// the validated plan down the setup pipe, and the init sends a failure
// report up the report pipe when a bootstrap step fails. Both travel as
// CBOR with Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (pipes):
//
//	encoder := codec.NewEncoder(pipe)
//	decoder := codec.NewDecoder(pipe)
package codec
