// Package sanitizer normalizes free-form user input before validation and
// storage.
//
// All functions are idempotent and never fail: invalid input is reduced to
// an empty string rather than reported as an error.
package sanitizer
