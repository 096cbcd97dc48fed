package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vigil-sh/vigil/internal/child"
	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/deploy"
	"github.com/vigil-sh/vigil/internal/history"
	"github.com/vigil-sh/vigil/internal/history/factory"
	"github.com/vigil-sh/vigil/internal/lock"
	"github.com/vigil-sh/vigil/internal/logger"
	"github.com/vigil-sh/vigil/internal/metrics"
	"github.com/vigil-sh/vigil/internal/poller"
	"github.com/vigil-sh/vigil/internal/server"
	"github.com/vigil-sh/vigil/internal/state"
	"github.com/vigil-sh/vigil/internal/supervisor"
)

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	watchFlags := &WatchFlags{}
	deployFlags := &DeployFlags{}
	pollFlags := &PollFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createWatchCommand(globalFlags, watchFlags),
		createDeployCommand(globalFlags, deployFlags),
		createPollCommand(globalFlags, pollFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "vigil",
		Short:         "vigil keeps one process alive and its deployment current",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to vigil TOML config")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "operational log level (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&flags.LogColor, "log-color", false, "colorize operational log levels")
	return root
}

func newLogger(flags *GlobalFlags) *slog.Logger {
	return logger.New(os.Stderr, flags.LogLevel, flags.LogColor)
}

func createWatchCommand(global *GlobalFlags, f *WatchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags] -- command [args...]",
		Short: "Supervise one process: restart it on crashes, stop cleanly on SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.RestartDelaySet = cmd.Flags().Changed("restart-delay")
			return runWatch(global, f, args)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "name of the supervised process (defaults to the command's program)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "working directory for the child")
	cmd.Flags().StringVar(&f.CrashLog, "crash-log", "", "crash ledger path (env CRASH_LOG; default temp location)")
	cmd.Flags().DurationVar(&f.RestartDelay, "restart-delay", 0, "pause before restarting after a crash (env RESTART_DELAY; default 5s)")
	cmd.Flags().IntVar(&f.MaxCrashes, "max-crashes-per-hour", 0, "crash count tripping the circuit breaker (env MAX_CRASHES_PER_HOUR; default 10)")
	cmd.Flags().DurationVar(&f.Cooldown, "cooldown", 0, "pause while the breaker is open (default 60s)")
	cmd.Flags().DurationVar(&f.GracePeriod, "grace-period", 0, "SIGTERM-to-SIGKILL budget on shutdown (default 5s)")
	cmd.Flags().StringVar(&f.BuildCommand, "build", "", "fallback build command when the executable is missing")
	cmd.Flags().StringVar(&f.LogDir, "log-dir", "", "directory for rotated child stdout/stderr capture")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "history sink DSN (sqlite path or postgres URL)")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "address for the status/metrics HTTP endpoint (disabled when empty)")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "base path for the status HTTP endpoint")
	return cmd
}

func runWatch(global *GlobalFlags, f *WatchFlags, args []string) error {
	log := newLogger(global)

	set, err := assembleWatch(global, f, args)
	if err != nil {
		return err
	}

	sup := supervisor.New(set.spec, set.opts, set.crashLog)
	sup.SetLogger(log)
	sup.SetEnv(set.env)

	if set.historyDSN != "" {
		sink, err := factory.NewSinkFromDSN(set.historyDSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		sup.SetHistory(sink)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if set.listen != "" {
		srv := server.NewServer(set.listen, set.basePath, sup)
		defer func() { _ = srv.Close() }()
		log.Info("status endpoint listening", "addr", set.listen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		log.Info("termination signal received", "signal", sig.String())
		sup.Shutdown()
	}()

	return sup.Run(ctx)
}

// watchSettings is everything the watch command needs after config file,
// environment and flags have been merged.
type watchSettings struct {
	spec       child.Spec
	opts       supervisor.Options
	crashLog   string
	env        []string
	historyDSN string
	listen     string
	basePath   string
}

// assembleWatch merges config file, environment and flags into the spec and
// restart policy. Precedence: flags > environment > config file > defaults.
func assembleWatch(global *GlobalFlags, f *WatchFlags, args []string) (watchSettings, error) {
	var set watchSettings

	if global.ConfigPath != "" {
		cfg, err := config.Load(global.ConfigPath)
		if err != nil {
			return set, err
		}
		set.spec = cfg.Spec()
		set.opts = cfg.Options()
		set.crashLog = cfg.Supervisor.CrashLog
		set.env = cfg.Env
		set.historyDSN = cfg.History.DSN
		set.listen = cfg.Server.Listen
		set.basePath = cfg.Server.BasePath
	} else {
		// Without a config file the documented env vars still apply.
		if p := os.Getenv(config.EnvCrashLog); p != "" {
			set.crashLog = p
		}
		if raw := os.Getenv(config.EnvRestartDelay); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
				set.opts.RestartDelay = supervisor.Delay(time.Duration(n) * time.Second)
			} else if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
				set.opts.RestartDelay = supervisor.Delay(d)
			}
		}
		if raw := os.Getenv(config.EnvMaxCrashesPerHour); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				set.opts.MaxCrashes = n
			}
		}
	}

	if len(args) > 0 {
		set.spec.Command = strings.Join(args, " ")
	}
	if set.spec.Command == "" {
		return set, errors.New("no command to supervise: pass it after -- or set [supervisor].command in the config")
	}
	if f.Name != "" {
		set.spec.Name = f.Name
	}
	if set.spec.Name == "" {
		set.spec.Name = set.spec.Executable()
	}
	if f.WorkDir != "" {
		set.spec.WorkDir = f.WorkDir
	}
	if f.LogDir != "" {
		set.spec.Log.Dir = f.LogDir
	}

	if f.RestartDelaySet {
		set.opts.RestartDelay = supervisor.Delay(f.RestartDelay)
	}
	if f.MaxCrashes > 0 {
		set.opts.MaxCrashes = f.MaxCrashes
	}
	if f.Cooldown > 0 {
		set.opts.Cooldown = f.Cooldown
	}
	if f.GracePeriod > 0 {
		set.opts.GracePeriod = f.GracePeriod
	}
	if f.BuildCommand != "" {
		set.opts.BuildCommand = f.BuildCommand
	}
	if f.CrashLog != "" {
		set.crashLog = f.CrashLog
	}
	if set.crashLog == "" {
		set.crashLog = config.DefaultCrashLog()
	}
	if f.HistoryDSN != "" {
		set.historyDSN = f.HistoryDSN
	}
	if f.Listen != "" {
		set.listen = f.Listen
	}
	if f.BasePath != "" {
		set.basePath = f.BasePath
	}
	return set, nil
}

func createDeployCommand(global *GlobalFlags, f *DeployFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run one check-and-apply cycle over the configured deploy targets",
		Long: "Fetches each target's remote, and for targets with a new revision pulls,\n" +
			"builds and deploys. Exits 0 when all targets are healthy, 2 when another\n" +
			"run holds the lock, 3 when one or more targets failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(global, f)
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "bypass the up-to-date check and redeploy every target")
	cmd.Flags().StringVar(&f.LockPath, "lock", "", "run lock file path (default temp location)")
	cmd.Flags().StringVar(&f.StatePath, "state", "", "applied-revision store path (sqlite)")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "history sink DSN (sqlite path or postgres URL)")
	return cmd
}

func runDeploy(global *GlobalFlags, f *DeployFlags) error {
	code, err := deployOnce(global, f)
	if err != nil {
		return err
	}
	os.Exit(code)
	return nil
}

// deployOnce runs one orchestration cycle and returns the process exit code.
// Deferred closes (state store, history sink) run before the caller exits.
func deployOnce(global *GlobalFlags, f *DeployFlags) (int, error) {
	log := newLogger(global)

	if global.ConfigPath == "" {
		return 0, errors.New("deploy requires --config with at least one [[targets]] entry")
	}
	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		return 0, err
	}
	if len(cfg.Targets) == 0 {
		return 0, fmt.Errorf("no deploy targets configured in %s", global.ConfigPath)
	}

	lockPath := cfg.Lock.Path
	if f.LockPath != "" {
		lockPath = f.LockPath
	}
	lk, err := lock.New(lockPath)
	if err != nil {
		return 0, err
	}

	statePath := cfg.State.Path
	if f.StatePath != "" {
		statePath = f.StatePath
	}
	if statePath == "" {
		return 0, errors.New("deploy requires a state store path ([state].path or --state)")
	}
	st, err := state.NewSQLite(statePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()

	orc := deploy.New(lk, st)
	orc.SetLogger(log)
	orc.SetForce(f.Force)

	dsn := cfg.History.DSN
	if f.HistoryDSN != "" {
		dsn = f.HistoryDSN
	}
	var sink history.Sink
	if dsn != "" {
		sink, err = factory.NewSinkFromDSN(dsn)
		if err != nil {
			return 0, fmt.Errorf("history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		orc.SetHistory(sink)
	}

	res, err := orc.RunOnce(context.Background(), cfg.Targets)
	if err != nil {
		return 0, err
	}
	printRunResult(res)
	return res.ExitCode(), nil
}

func createPollCommand(global *GlobalFlags, f *PollFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Periodically GET a URL and log status and latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(global, f)
		},
	}
	cmd.Flags().StringVar(&f.URL, "url", "", "URL to poll")
	cmd.Flags().DurationVar(&f.Interval, "interval", 0, "poll interval (default 1m)")
	return cmd
}

func runPoll(global *GlobalFlags, f *PollFlags) error {
	log := newLogger(global)

	url := f.URL
	interval := f.Interval
	if global.ConfigPath != "" {
		cfg, err := config.Load(global.ConfigPath)
		if err != nil {
			return err
		}
		if url == "" {
			url = cfg.Poller.URL
		}
		if interval <= 0 {
			interval = cfg.Poller.Interval
		}
	}
	if url == "" {
		return errors.New("poll requires --url or [poller].url in the config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	poller.New(url, interval, log).Run(ctx)
	return nil
}
