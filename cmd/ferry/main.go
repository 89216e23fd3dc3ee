package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferrylabs/ferry/internal/config"
	"github.com/ferrylabs/ferry/internal/engine"
	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/prompt"
	"github.com/ferrylabs/ferry/internal/stats"
	"github.com/ferrylabs/ferry/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// transferFlags holds every flag shared by copy and move. Values here
// are the built-in defaults; the config file fills flags the user did
// not set, and explicit flags always win.
type transferFlags struct {
	overwrite      string
	resume         bool
	noResume       bool
	verify         string
	atomic         bool
	parallel       int
	bufferStr      string
	bwLimitStr     string
	sparse         bool
	reflink        string
	preserveTimes  bool
	followSymlinks bool
	excludes       []string
	dispatch       string
	dryRun         bool
	jsonOut        bool
	logFile        string
	verbose        bool
	quiet          bool
}

// enumFlag is a pflag.Value restricted to a fixed set of spellings.
type enumFlag struct {
	value   *string
	allowed []string
}

func newEnumFlag(p *string, def string, allowed ...string) *enumFlag {
	*p = def
	return &enumFlag{value: p, allowed: allowed}
}

func (e *enumFlag) String() string { return *e.value }
func (e *enumFlag) Type() string   { return "string" }

func (e *enumFlag) Set(s string) error {
	for _, a := range e.allowed {
		if s == a {
			*e.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(e.allowed, ", "))
}

func (f *transferFlags) register(cmd *cobra.Command, move bool) {
	fl := cmd.Flags()
	fl.Var(newEnumFlag(&f.overwrite, "", "never", "always", "prompt", "smart"),
		"overwrite", "overwrite mode: never, always, prompt, smart (default: prompt on a terminal, never otherwise)")
	fl.Var(newEnumFlag(&f.verify, "none", "none", "fast", "full"),
		"verify", "post-transfer verification: none, fast, full")
	fl.IntVarP(&f.parallel, "parallel", "n", 0, "worker count for large files (0 = auto, 1 = sequential)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show what would be transferred without writing")
	fl.BoolVar(&f.jsonOut, "json", false, "emit a JSON report instead of progress output")
	fl.StringVar(&f.logFile, "log", "", "write structured JSON log to FILE")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress all output except errors")
	if move {
		return
	}
	fl.BoolVar(&f.resume, "resume", true, "continue interrupted transfers from the persisted offset")
	fl.BoolVar(&f.noResume, "no-resume", false, "discard any partial state and restart from scratch")
	fl.BoolVar(&f.atomic, "atomic", false, "stage to a temporary file and rename into place on success")
	fl.StringVar(&f.bufferStr, "buffer", "", "chunk size for streaming and partitioning (e.g. 64MiB)")
	fl.StringVar(&f.bwLimitStr, "bwlimit", "", "aggregate bandwidth limit (e.g. 100MiB)")
	fl.BoolVar(&f.sparse, "sparse", false, "detect source holes and keep the destination sparse")
	fl.Var(newEnumFlag(&f.reflink, "auto", "auto", "always", "never"),
		"reflink", "clone instead of copy when the filesystem supports it: auto, always, never")
	fl.BoolVar(&f.preserveTimes, "preserve-times", false, "preserve source modification times")
	fl.BoolVar(&f.followSymlinks, "follow-symlinks", false, "copy symlink targets instead of recreating links")
	fl.StringArrayVar(&f.excludes, "exclude", nil, "exclude files matching PATTERN (repeatable)")
	fl.Var(newEnumFlag(&f.dispatch, "auto", "auto", "tree", "flat"),
		"dispatch", "directory parallelism strategy: auto, tree, flat")
}

func run() int {
	var showVersion bool
	copyFlags := &transferFlags{}
	moveFlags := &transferFlags{}

	rootCmd := &cobra.Command{
		Use:           "ferry",
		Short:         "Resumable, verifiable, parallel file transfers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "ferry %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	copyCmd := &cobra.Command{
		Use:     "copy [flags] SOURCE... DEST",
		Aliases: []string{"cp"},
		Short:   "Copy files and directories",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, engine.OpCopy, copyFlags)
		},
	}
	copyFlags.register(copyCmd, false)

	moveCmd := &cobra.Command{
		Use:     "move [flags] SOURCE... DEST",
		Aliases: []string{"mv"},
		Short:   "Move files and directories, falling back to copy across filesystems",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, engine.OpMove, moveFlags)
		},
	}
	moveFlags.register(moveCmd, true)

	rootCmd.AddCommand(copyCmd, moveCmd, docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

//nolint:gocyclo // main CLI entry point orchestrates flag merging and wiring
func runTransfer(cmd *cobra.Command, args []string, op engine.Operation, f *transferFlags) error {
	sources := args[:len(args)-1]
	dest := args[len(args)-1]

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}

	if err := setupLogging(f); err != nil {
		return err
	}
	defer closeLogFile()

	req, err := buildRequest(cmd, f, cfg)
	if err != nil {
		return err
	}

	isTTY := ui.IsTTY(os.Stderr.Fd())

	// Prompt mode needs a terminal to ask on; degrade rather than hang.
	if req.Overwrite == engine.OverwritePrompt && !isTTY {
		slog.Warn("no terminal for overwrite prompts, treating destination conflicts as errors")
		req.Overwrite = engine.OverwriteNever
	}

	var bwLimitStr string
	switch {
	case cmd.Flags().Changed("bwlimit"):
		bwLimitStr = f.bwLimitStr
	case cfg.Performance.BWLimit != nil:
		bwLimitStr = *cfg.Performance.BWLimit
	}
	bwLimit, err := config.ParseSize(bwLimitStr)
	if err != nil {
		return fmt.Errorf("invalid --bwlimit: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer engine.CleanupStaging()

	tracker := stats.NewTracker()
	events := make(chan event.Event, 256)

	opts := engine.Options{
		Tracker: tracker,
		Events:  events,
	}
	if bwLimit > 0 {
		opts.Limiter = engine.NewBWLimiter(bwLimit)
	}
	if isTTY && !f.jsonOut && !f.quiet {
		opts.Prompter = prompt.Overwriter{}
		opts.Resumer = prompt.Resumer{}
	}

	presenterEvents := teeEventLog(events, f.logFile != "")
	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Tracker:   tracker,
		DstRoot:   dest,
		Mode:      presenterMode(f, cfg),
		IsTTY:     isTTY,
	})

	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		if perr := presenter.Run(presenterEvents); perr != nil {
			fmt.Fprintf(os.Stderr, "presenter: %v\n", perr)
		}
	}()

	result := engine.Run(ctx, engine.Config{
		Operation: op,
		Sources:   sources,
		Dest:      dest,
		Request:   req,
		DryRun:    f.dryRun,
	}, opts)
	stop()
	close(events)
	presenterWg.Wait()

	if f.jsonOut {
		rep := ui.NewReport(op.String(), sources, dest, result)
		if werr := rep.Write(os.Stdout); werr != nil {
			return fmt.Errorf("write report: %w", werr)
		}
	} else if !f.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if result.Err != nil {
		slog.Error(op.String()+" failed", "error", result.Err)
		if !f.jsonOut {
			if hint := ui.Hint(result.Err); hint != "" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
			}
		}
		if engine.IsKind(result.Err, engine.KindUserAborted) {
			return &exitError{code: 130}
		}
		return &exitError{code: 1}
	}
	return nil
}

// buildRequest merges flags, config, and built-in defaults into a
// transfer request template. Precedence: explicit flag, then config,
// then default.
func buildRequest(cmd *cobra.Command, f *transferFlags, cfg config.Config) (engine.TransferRequest, error) {
	var req engine.TransferRequest
	changed := cmd.Flags().Changed

	overwriteStr := f.overwrite
	if !changed("overwrite") && cfg.Defaults.Overwrite != nil {
		overwriteStr = *cfg.Defaults.Overwrite
	}
	if overwriteStr == "" {
		overwriteStr = "prompt"
	}
	overwrite, err := engine.ParseOverwriteMode(overwriteStr)
	if err != nil {
		return req, err
	}

	verifyStr := f.verify
	if !changed("verify") && cfg.Defaults.Verify != nil {
		verifyStr = *cfg.Defaults.Verify
	}
	verify, err := engine.ParseVerifyMode(verifyStr)
	if err != nil {
		return req, err
	}

	req.Overwrite = overwrite
	req.Verify = verify
	req.Workers = f.parallel
	if !changed("parallel") && cfg.Defaults.Parallel != nil {
		req.Workers = *cfg.Defaults.Parallel
	}

	// Move has no resume, atomic, or tuning flags; the zero values are
	// correct there.
	if cmd.Flags().Lookup("resume") == nil {
		return req, nil
	}

	req.Resume = f.resume
	if !changed("resume") && cfg.Defaults.Resume != nil {
		req.Resume = *cfg.Defaults.Resume
	}
	if f.noResume {
		req.Resume = false
	}

	reflinkStr := f.reflink
	if !changed("reflink") && cfg.Defaults.Reflink != nil {
		reflinkStr = *cfg.Defaults.Reflink
	}
	req.Reflink, err = engine.ParseCloneMode(reflinkStr)
	if err != nil {
		return req, err
	}

	req.Sparse = f.sparse
	if !changed("sparse") && cfg.Defaults.Sparse != nil {
		req.Sparse = *cfg.Defaults.Sparse
	}

	req.Atomic = f.atomic
	if !changed("atomic") && cfg.Behavior.Atomic != nil {
		req.Atomic = *cfg.Behavior.Atomic
	}
	req.PreserveTimes = f.preserveTimes
	if !changed("preserve-times") && cfg.Behavior.PreserveTimes != nil {
		req.PreserveTimes = *cfg.Behavior.PreserveTimes
	}
	req.FollowSymlinks = f.followSymlinks
	if !changed("follow-symlinks") && cfg.Behavior.FollowSymlinks != nil {
		req.FollowSymlinks = *cfg.Behavior.FollowSymlinks
	}

	req.Dispatch, err = engine.ParseDispatchStrategy(f.dispatch)
	if err != nil {
		return req, err
	}
	req.Excludes = f.excludes

	chunkStr := f.bufferStr
	if !changed("buffer") && cfg.Performance.ChunkSize != nil {
		chunkStr = *cfg.Performance.ChunkSize
	}
	req.ChunkSize, err = config.ParseSize(chunkStr)
	if err != nil {
		return req, fmt.Errorf("invalid --buffer: %w", err)
	}
	if cfg.Performance.ResumeInterval != nil {
		req.PersistEvery, err = config.ParseSize(*cfg.Performance.ResumeInterval)
		if err != nil {
			return req, fmt.Errorf("invalid resume_interval: %w", err)
		}
	}

	return req, nil
}

func presenterMode(f *transferFlags, cfg config.Config) ui.Mode {
	if f.jsonOut || f.quiet {
		return ui.ModeQuiet
	}
	if cfg.UI.Progress != nil {
		if mode, err := ui.ParseMode(*cfg.UI.Progress); err == nil {
			return mode
		}
		slog.Warn("invalid ui.progress in config, using auto", "value", *cfg.UI.Progress)
	}
	return ui.ModeAuto
}

// teeEventLog forwards events to the presenter, writing a structured
// record for each when logging to a file is enabled.
func teeEventLog(events chan event.Event, logEnabled bool) <-chan event.Event {
	if !logEnabled {
		return events
	}
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("path", ev.Path),
				slog.Int64("size", ev.Size),
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelInfo, "ferry.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}

var logFileHandle *os.File

func setupLogging(f *transferFlags) error {
	logLevel := slog.LevelWarn
	if f.verbose {
		logLevel = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})

	var handler slog.Handler = textHandler
	if f.logFile != "" {
		lf, err := os.Create(f.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFileHandle = lf
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func closeLogFile() {
	if logFileHandle != nil {
		_ = logFileHandle.Close()
		logFileHandle = nil
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
