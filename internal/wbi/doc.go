// Package wbi implements the platform's WBI request-signing scheme.
//
// The scheme combines two rotating hexadecimal keys published by the nav
// endpoint with a fixed 64-entry permutation table to produce a 32-character
// mixin key. Each request is then signed with the MD5 digest of its
// canonically ordered query string followed by the mixin key.
//
// The main components are:
//
//   - [KeyFetcher]: Retrieves the current [Keys] from the nav endpoint
//   - [Signer]: Derives the mixin key once and signs any number of [Params]
//   - [Sign]: Convenience wrapper for one-off signing
//
// Keys are plain values. Nothing in this package caches them, so callers
// decide how long a key pair lives and tests can inject fixed keys.
package wbi
