// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Mkbox-probe runs inside a mkbox sandbox and verifies its isolation:
// read-only root, detached host root, fixed hostname, mapped identity,
// empty capability sets, no_new_privs and a network namespace with only
// loopback. Bind it into a sandbox and run it as the target:
//
//	mkbox -s /srv/box -b /usr/local/bin/mkbox-probe=probe -u 1000 -g 1000 \
//	    /probe --uid 1000 --gid 1000
//
// It exits 1 when any probe finds a breach or the arguments are invalid.
package main
