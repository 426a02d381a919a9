// Package eventbus broadcasts batch progress events to live observers.
//
// A Bus keeps the most recent events in a fixed-size ring so late observers can
// read recent history through a snapshot, and hands each subscriber a bounded
// outbox. Publishing never waits on an observer; a subscriber that falls a full
// outbox behind is dropped and must reconnect.
//
// Payloads form a closed set defined in this package. Events serialize as
// {"seq", "type", "data", "timestamp"} and decode back into concrete payloads.
package eventbus
