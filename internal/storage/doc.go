// Package storage persists the notification history across sessions.
//
// It currently supports:
//   - A flat JSON document (default; matches the historical on-disk format)
//   - SQLite (optional, behind the "sqlite" build tag)
//
// Saves are wholesale: the persisted document always mirrors the full
// in-memory ordered list. I/O failures are for the caller to log and
// swallow; the in-memory store stays authoritative.
package storage
