// Package poller checks creators for newly published items.
//
// The main components are:
//
//   - [Client]: pooled HTTP client with timeout and size limits
//   - [ContentFetcher]: signed lookup of a creator's newest item, with retries
//   - [Cycle]: one pass over all creators, deciding notify and record
//
// Users of the creatorwatch library should not need to interact with this
// package directly. Configuration is done through the main creatorwatch
// package.
package poller
