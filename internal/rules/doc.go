// Package rules holds the per-category delivery policies: priority
// thresholds, delivery frequency class, quiet hours, rate caps and filters.
//
// Policies round-trip through a flat YAML document. Missing or corrupt files
// fall back to built-in defaults without surfacing an error, because a broken
// preferences file must never stop notifications from being recorded.
package rules
