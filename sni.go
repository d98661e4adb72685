// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package tlswrap

import "golang.org/x/net/idna"

// normalizeServerName converts a client-supplied server_name to its
// ASCII/punycode form for the SNI hint passed to the engine factory,
// per spec.md §4.1 ("creates it (with SNI hint iff client and
// server_name present)"). An unparseable name is passed through
// unchanged: SNI hint rejection is the engine's concern, not ours.
func normalizeServerName(name string) string {
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}
