package relay

import (
	_ "embed"
	"html/template"
	"strconv"
	"strings"
	"time"
)

// ErrorRelayTimeout is the error code the loading watchdog reports.
const ErrorRelayTimeout = "relay_timeout"

//go:embed relay.js
var relayScript string

//go:embed watchdog.js
var watchdogScript string

// Script is the browser rendition of Advance. It must run before anything user-visible.
func Script() template.JS {
	return template.JS(relayScript)
}

// WatchdogScript turns a loading page that outlives timeout into an authority-style
// error redirect, so a stalled relay ends in the error state rather than a spinner.
func WatchdogScript(timeout time.Duration) template.JS {
	ms := strconv.FormatInt(timeout.Milliseconds(), 10)
	return template.JS(strings.Replace(watchdogScript, "__TIMEOUT_MS__", ms, 1))
}
