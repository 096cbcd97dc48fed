package main

import "time"

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogColor   bool
}

// WatchFlags holds flags for the watch (supervisor) command.
// RestartDelaySet records whether --restart-delay was passed at all, so an
// explicit --restart-delay=0 is honored instead of falling back to defaults.
type WatchFlags struct {
	Name            string
	WorkDir         string
	CrashLog        string
	RestartDelay    time.Duration
	RestartDelaySet bool
	MaxCrashes      int
	Cooldown        time.Duration
	GracePeriod     time.Duration
	BuildCommand    string
	LogDir          string
	HistoryDSN      string
	Listen          string
	BasePath        string
}

// DeployFlags holds flags for the deploy (orchestrator) command.
type DeployFlags struct {
	Force      bool
	LockPath   string
	StatePath  string
	HistoryDSN string
}

// PollFlags holds flags for the poll command.
type PollFlags struct {
	URL      string
	Interval time.Duration
}
