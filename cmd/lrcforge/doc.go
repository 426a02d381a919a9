// Package main hosts the lrcforge CLI entrypoint and command graph.
//
// `lrcforge serve` runs the daemon in the foreground and `lrcforge daemon`
// starts or stops it in the background. `config init|show|validate` work on
// the local file. Every other command is a thin HTTP client of a running
// daemon: it resolves the API address and token from the config file (or
// --api), calls the endpoint, and renders the response as text tables, a live
// event feed, or JSON.
package main
