// Package dedupe provides ticket deduplication using a time-based cache
// so that resubmitting the same failure does not file duplicate tickets.
package dedupe
