// Package schedule feeds tick schedulers from cron expressions.
//
// Specs accept an optional leading seconds field and descriptors such as
// "@every 5s" or "@hourly".
package schedule
