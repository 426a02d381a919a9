// Package library maps the configured source directory onto batch items and
// reports which artifacts already exist. It also backs the path autocomplete
// used when editing settings.
package library
