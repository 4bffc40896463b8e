// Package config loads and watches the engine preferences document.
//
// The document is JSON or YAML (selected by file extension) and decoded
// strictly. A Manager hands out the committed snapshot and publishes updated
// snapshots to subscribers on hot reload.
package config
