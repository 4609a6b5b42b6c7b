package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	bhv := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	exitCode, err := bhv.action()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
	}
	os.Exit(exitCode)
}

// Holder type which makes it easier for us to inspect
//  the args parser result in test code before running logic.
type behavior struct {
	parsedArgs interface{}
	action     func() (exitCode int, err error)
}

type format string

const (
	format_Ansi = "ansi"
	format_Json = "json"
)

type baseArgs struct {
	Format     string
	ConfigPath string
	LogLevel   string
	LogJson    bool
	Workspace  string
	StoreDir   string
	Runtime    []string
	S3Access   string
	S3Secret   string
	OCIUser    string
	OCIPass    string
}

type runArgs struct {
	baseArgs
	Coordinate string
	Version    string
	Mode       string
	Arguments  map[string]string
	Timeout    time.Duration
	ReportsDir string
	ExtraArgs  []string
}

type batchArgs struct {
	baseArgs
	BatchPath      string
	Parallel       bool
	MaxConcurrency int
	StopOnFailure  bool
	DryRun         bool
	Timeout        time.Duration
}

type examplesArgs struct {
	baseArgs
	Dir string
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) behavior {
	// CLI boilerplate.
	app := kingpin.New("pkgrun", "Resolve, fetch, and run versioned packages.")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	// Args struct defs and flag declarations.
	base := baseArgs{}
	app.Flag("format", "Output api format").
		Default(format_Ansi).
		EnumVar(&base.Format,
			format_Ansi, format_Json)
	app.Flag("config", "Path to config file.").
		Envar("PKGRUN_CONFIG").
		StringVar(&base.ConfigPath)
	app.Flag("log-level", "Least severe level of log to print.").
		Default("info").
		EnumVar(&base.LogLevel,
			"debug", "info", "warn", "error", "crit")
	app.Flag("log-json", "Print logs as json.").
		BoolVar(&base.LogJson)
	app.Flag("workspace", "Workspace dir (overrides config).").
		Envar("PKGRUN_WORKSPACE").
		StringVar(&base.Workspace)
	app.Flag("store-dir", "Use a dir store rooted here (overrides config).").
		StringVar(&base.StoreDir)
	app.Flag("runtime", "Program (and args) used to run process-mode packages; repeat for each word (overrides config).").
		StringsVar(&base.Runtime)
	app.Flag("s3-access-key", "Access key for an s3 store (overrides config).").
		Envar("AWS_ACCESS_KEY_ID").
		StringVar(&base.S3Access)
	app.Flag("s3-secret-key", "Secret key for an s3 store (overrides config).").
		Envar("AWS_SECRET_ACCESS_KEY").
		StringVar(&base.S3Secret)
	app.Flag("oci-username", "Username for an oci store (overrides config).").
		Envar("PKGRUN_OCI_USERNAME").
		StringVar(&base.OCIUser)
	app.Flag("oci-password", "Password for an oci store (overrides config).").
		Envar("PKGRUN_OCI_PASSWORD").
		StringVar(&base.OCIPass)
	bhvs := map[string]behavior{}
	{
		cmdRun := app.Command("run", "Resolve and execute one package.")
		argsRun := &runArgs{}
		cmdRun.Arg("coordinate", "Package coordinate, as namespace:name.").
			Required().
			StringVar(&argsRun.Coordinate)
		cmdRun.Flag("version", "Version spec: exact, 'latest.release', or a prefix range like '1.+'.").
			Short('v').
			Default(api.LatestReleaseToken).
			StringVar(&argsRun.Version)
		cmdRun.Flag("mode", "Execution mode").
			Default(string(api.ModeProcess)).
			EnumVar(&argsRun.Mode,
				string(api.ModeProcess), string(api.ModePlugin))
		cmdRun.Flag("arg", "Task argument, as key=value; may be repeated.").
			Short('a').
			StringMapVar(&argsRun.Arguments)
		cmdRun.Flag("timeout", "Wall clock limit for the task (overrides config).").
			DurationVar(&argsRun.Timeout)
		cmdRun.Flag("reports", "Dir to write reports and outputs into.").
			StringVar(&argsRun.ReportsDir)
		cmdRun.Flag("runtime-arg", "Extra argument for the runtime, before the artifact path; may be repeated.").
			StringsVar(&argsRun.ExtraArgs)
		bhvs[cmdRun.FullCommand()] = behavior{argsRun, func() (int, error) {
			argsRun.baseArgs = base
			cfg, log, err := setup(base, stderr)
			if err != nil {
				return 1, err
			}
			printer := setupPrinter(format(base.Format), stdout, stderr)
			return RunCmd(ctx, cfg, *argsRun, printer, log)
		}}
	}
	{
		cmdBatch := app.Command("batch", "Execute a batch of packages listed in a file.")
		argsBatch := &batchArgs{}
		cmdBatch.Arg("batchfile", "Path to batch file.").
			Required().
			StringVar(&argsBatch.BatchPath)
		cmdBatch.Flag("parallel", "Run jobs concurrently.").
			BoolVar(&argsBatch.Parallel)
		cmdBatch.Flag("max-concurrency", "Most jobs to run at once when parallel (overrides config and batch file).").
			IntVar(&argsBatch.MaxConcurrency)
		cmdBatch.Flag("stop-on-failure", "Stop starting jobs after the first failure (sequential batches only).").
			BoolVar(&argsBatch.StopOnFailure)
		cmdBatch.Flag("dry-run", "Resolve and download, but don't execute.").
			BoolVar(&argsBatch.DryRun)
		cmdBatch.Flag("timeout", "Wall clock limit per job (overrides config and batch file).").
			DurationVar(&argsBatch.Timeout)
		bhvs[cmdBatch.FullCommand()] = behavior{argsBatch, func() (int, error) {
			argsBatch.baseArgs = base
			cfg, log, err := setup(base, stderr)
			if err != nil {
				return 1, err
			}
			printer := setupPrinter(format(base.Format), stdout, stderr)
			return BatchCmd(ctx, cfg, *argsBatch, printer, log)
		}}
	}
	{
		cmdExamples := app.Command("examples", "Publish the example packages into a dir store.")
		argsExamples := &examplesArgs{}
		cmdExamples.Arg("dir", "Dir store root to publish into (created if needed).").
			Required().
			StringVar(&argsExamples.Dir)
		bhvs[cmdExamples.FullCommand()] = behavior{argsExamples, func() (int, error) {
			argsExamples.baseArgs = base
			_, log, err := setup(base, stderr)
			if err != nil {
				return 1, err
			}
			err = ExamplesCmd(argsExamples.Dir, stdout, log)
			return api.ExitCodeFor(nil, err), err
		}}
	}

	// Parse!
	parsedCmdStr, err := app.Parse(args[1:])
	if err != nil {
		return behavior{
			parsedArgs: err,
			action: func() (int, error) {
				return 1, Errorf(api.ErrUsage, "error parsing args: %s", err)
			},
		}
	}
	// Return behavior named by the command and subcommand strings.
	if bhv, ok := bhvs[parsedCmdStr]; ok {
		return bhv
	}
	panic("unreachable, cli parser must error on unknown commands")
}

/*
	Build the logger, and load config with any flag overrides applied.
*/
func setup(base baseArgs, stderr io.Writer) (config.Config, log15.Logger, error) {
	log := setupLog(base.LogLevel, base.LogJson, stderr)
	cfg := config.Default()
	if base.ConfigPath != "" {
		var err error
		cfg, err = config.Load(base.ConfigPath)
		if err != nil {
			return cfg, log, err
		}
		log.Debug("loaded config", "path", base.ConfigPath)
	}
	if base.Workspace != "" {
		cfg.Workspace = base.Workspace
	}
	if base.StoreDir != "" {
		cfg.Store.Kind = config.StoreDir
		cfg.Store.Dir.Root = base.StoreDir
	}
	if len(base.Runtime) > 0 {
		cfg.Runtime = base.Runtime
	}
	// Credentials only ever come in here; nothing below reads the environment.
	if base.S3Access != "" {
		cfg.Store.S3.AccessKey = base.S3Access
		cfg.Store.S3.SecretKey = base.S3Secret
	}
	if base.OCIUser != "" {
		cfg.Store.OCI.Username = base.OCIUser
		cfg.Store.OCI.Password = base.OCIPass
	}
	return cfg, log, cfg.Validate()
}

func setupLog(level string, asJson bool, stderr io.Writer) log15.Logger {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		panic("unreachable, cli parser must reject unknown log levels")
	}
	fmtr := log15.TerminalFormat()
	if asJson {
		fmtr = log15.JsonFormat()
	}
	log := log15.New()
	log.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(stderr, fmtr)))
	return log
}

func setupPrinter(format format, stdout, stderr io.Writer) printer {
	switch format {
	case format_Ansi:
		return &ansi{stdout: stdout, stderr: stderr}
	case format_Json:
		return jsonPrinter{stdout: stdout}
	default:
		panic("unreachable")
	}
}
