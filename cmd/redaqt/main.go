// Command redaqt protects files into PDO carriers and opens them again.
//
//	redaqt protect [flags] FILE...
//	redaqt access [flags] CARRIER...
//	redaqt inspect CARRIER
//
// Configuration is read from redaqt.yaml, REDAQT_* environment variables
// (a .env file in the working directory is loaded first) and flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	pdo "github.com/redaqt/pdo-go"
	"github.com/redaqt/pdo-go/internal/logging"
)

const usage = `usage: redaqt <command> [flags] [args]

commands:
  protect   wrap files in protected carriers
  access    open carriers and write the original files
  inspect   print the public metadata of a carrier
`

// errUsage is returned for bad invocations; the usage text is printed.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "protect":
		err = protectCmd(ctx, args[1:], stdout, stderr)
	case "access":
		err = accessCmd(ctx, args[1:], stdout, stderr)
	case "inspect":
		err = inspectCmd(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	default:
		fmt.Fprintf(stderr, "redaqt: %v\n", err)
		return 1
	}
}

// session is the engine and its ambient stack for one command.
type session struct {
	cfg    *Config
	engine *pdo.Engine
	logger *zap.Logger
	reg    *prometheus.Registry
}

func newSession(fs *pflag.FlagSet) (*session, error) {
	cfg, err := loadConfig(fs)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.logConfig())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	opts, err := cfg.engineOptions()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	opts = append(opts, pdo.WithLogger(logger), pdo.WithMetrics(reg))
	engine, err := pdo.New(cfg.engineConfig(), opts...)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, engine: engine, logger: logger, reg: reg}, nil
}

// close flushes the log and writes the metrics file if one is configured.
func (s *session) close() {
	if path := s.cfg.Metrics.File; path != "" {
		if err := prometheus.WriteToTextfile(path, s.reg); err != nil {
			s.logger.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

func protectCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("protect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	globalFlags(fs)
	fs.String("policy", "", "smart policy protocol")
	condition := fs.String("condition", "", "alias, date or passphrase the policy needs")
	outDir := fs.StringP("out", "o", "", "output directory (default: beside each file)")
	fs.String("image", "", "certificate image")
	fs.Bool("certificate", false, "request a certificate")
	fs.Bool("on-request", false, "send a receipt when the carrier is opened")
	fs.Bool("on-delivery", false, "send a receipt when the key is delivered")
	fs.String("receipt", "", "receipt channel: Message, Email, SMS or Device")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	s, err := newSession(fs)
	if err != nil {
		return err
	}
	defer s.close()

	results, err := s.engine.Protect(ctx, s.cfg.account(), pdo.ProtectRequest{
		Files:     fs.Args(),
		Condition: *condition,
		OutputDir: *outDir,
	})
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s -> %s\n", r.Source, r.Carrier)
	}
	if err != nil && len(results) > 0 {
		return fmt.Errorf("%d of %d files failed", countFailed(results), len(results))
	}
	return err
}

func countFailed(results []pdo.ProtectResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func accessCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("access", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	globalFlags(fs)
	outDir := fs.StringP("out", "o", "", "output directory (default: beside each carrier)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	s, err := newSession(fs)
	if err != nil {
		return err
	}
	defer s.close()

	acct := s.cfg.account()
	var errs []error
	for _, carrier := range fs.Args() {
		var res *pdo.AccessResult
		if *outDir != "" {
			res, err = s.engine.AccessTo(ctx, acct, carrier, *outDir)
		} else {
			res, err = s.engine.Access(ctx, acct, carrier)
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", carrier, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(stdout, "%s -> %s\n", carrier, res.Path)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d carriers failed", len(errs), fs.NArg())
	}
	return nil
}

func inspectCmd(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	in, err := pdo.Inspect(fs.Arg(0))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(in)
}
