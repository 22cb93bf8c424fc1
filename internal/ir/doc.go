// Package ir provides the value model shared by the opline packages.
//
// Document snapshots, journal records and compiled service manifests are all
// expressed with the types in this package. ir imports nothing internal, so
// every other package may depend on it without cycles.
//
// Key design constraints:
//   - Snapshots are trees of IRValue and are deep-copied with Clone
//   - NO float types (use int64); FromGo degrades floats to strings
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
