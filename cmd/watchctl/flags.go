package main

import "time"

// Flag structs decouple cobra from logic for testing.

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	ConfigPath string
	JSON       bool
	Timeout    time.Duration
}

// LifecycleFlags holds flags for start/stop/restart.
type LifecycleFlags struct {
	ConfigPath string
	Settle     time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Listen     string
	BasePath   string
}
