package main

import "time"

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Dir        string
	LogLevel   string
	LogFile    string
}

// Flag structs to decouple cobra from logic for testing.
type DevFlags struct {
	Background   bool
	Watch        bool
	SkipEnvCheck bool
	Filter       string
}

type KillFlags struct {
	Ports   []int
	Force   bool
	Timeout time.Duration
	All     bool
}

type StatusFlags struct {
	JSON       bool
	Prometheus bool
}

type EnvFlags struct {
	JSON bool
}

type RestartFlags struct {
	SkipKill     bool
	SkipEnvCheck bool
	Filter       string
}

type ListFlags struct {
	Prune bool
	JSON  bool
}

type HistoryFlags struct {
	Limit int
	JSON  bool
}
