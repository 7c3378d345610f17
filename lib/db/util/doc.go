// Package util provides statistics helpers used by KVDB implementations to
// report on their state without full scans: summary and distribution
// statistics over partition sizes, and a concurrent SizeHistogram for value
// sizes.
package util
