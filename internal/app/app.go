package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/logging"
)

const usage = `usage: clipforge <command> [arguments]

client commands:
  signup  --email <email> [--password <password>]
  login   --email <email> [--password <password>]
  logout
  upload  [--yes] [--wait] <video file>
  clips   [--wait] <video id>
  videos

backend commands:
  serve
  migrate [up|status]
  seed    <name>`

// Run bootstraps the ClipForge command named by args[0].
func Run(ctx context.Context, args []string) error {
	r := runner{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		loadConfig: config.Load,
	}
	return r.run(ctx, args)
}

// runner carries the process streams so commands can be exercised in tests.
type runner struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.Config, error)

	lines *bufio.Reader
}

func (r *runner) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, r.serverLogger(cfg))
	case "migrate":
		return runMigrations(ctx, cfg, args[1:], r.stdout)
	case "seed":
		return runSeed(ctx, cfg, args[1:], r.stdout)
	case "signup", "login":
		return r.startSession(ctx, cfg, args[0], args[1:])
	case "logout":
		return r.logout(ctx, cfg)
	case "upload":
		return r.upload(ctx, cfg, args[1:])
	case "clips":
		return r.clips(ctx, cfg, args[1:])
	case "videos":
		return r.videos(ctx, cfg)
	case "help", "-h", "--help":
		fmt.Fprintln(r.stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func (r *runner) serverLogger(cfg config.Config) *slog.Logger {
	logger := logging.NewLogger(r.stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

// clientLogger writes to stderr so command output on stdout stays clean.
func (r *runner) clientLogger(cfg config.Config) *slog.Logger {
	level := cfg.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	return logging.NewLogger(r.stderr, level)
}

// readLine reads one line of interactive input without the trailing newline.
func (r *runner) readLine(prompt string) (string, error) {
	if r.lines == nil {
		r.lines = bufio.NewReader(r.stdin)
	}
	fmt.Fprint(r.stdout, prompt)
	line, err := r.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
