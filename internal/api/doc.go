// Package api defines the wire types of the lrcforge HTTP API and the client
// the CLI uses to talk to a running daemon.
//
// DTOs use snake_case JSON keys so the browser UI and the CLI share one
// format. Timestamps are RFC3339 with milliseconds and omitted when unset.
// Event streams are Server-Sent Events: each frame carries the event
// sequence as its id, the event type as its name, and the payload as JSON
// data.
package api
