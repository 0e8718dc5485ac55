package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/okets/folderd/internal/daemon"
	"github.com/okets/folderd/internal/paths"
	"github.com/okets/folderd/pkg/logger"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := newApp()
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "folderd: %s\n", err)
		return 1
	}
	return 0
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "folderd",
		Usage: "indexed-folder and embedding-model daemon",
		Commands: []cli.Command{
			{
				Name:  "daemon",
				Usage: "run the daemon in the foreground",
				Flags: []cli.Flag{
					cli.IntFlag{Name: "port", Value: 31849, Usage: "HTTP companion port (WebSocket is port+1)"},
					cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "bind host (informational; the WebSocket server is always loopback-only)"},
					cli.BoolFlag{Name: "restart, r", Usage: "stop a previously running daemon before starting"},
					cli.StringFlag{Name: "log-file", Usage: "also write logs to this file, in addition to stderr (default: <state dir>/folderd.log)"},
				},
				Action: runDaemon,
			},
			{
				Name:   "stop",
				Usage:  "stop a running daemon",
				Action: stopDaemon,
			},
			{
				Name:   "version",
				Usage:  "print the daemon version",
				Action: printVersion,
			},
		},
	}
}

func runDaemon(ctx *cli.Context) error {
	stateDir, err := paths.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}

	consoleLogger := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	daemonLogger, closeLogger := openDaemonLogger(consoleLogger, stateDir, ctx.String("log-file"))
	defer closeLogger()

	o := daemon.New(daemon.Config{
		Host:     ctx.String("host"),
		HTTPPort: ctx.Int("port"),
		StateDir: stateDir,
		Version:  version,
		Fs:       afero.NewOsFs(),
		Logger:   daemonLogger,
	})

	shutdownCtx, cancel := daemon.NotifyShutdown()
	defer cancel()

	if err := o.Start(context.Background(), ctx.Bool("restart")); err != nil {
		return err
	}

	<-shutdownCtx.Done()
	return o.Shutdown(context.Background())
}

// openDaemonLogger adds a file backend alongside console, so an operator
// tailing the log file sees the same stream as the foreground terminal. If
// the file can't be opened, it falls back to console only rather than
// failing the daemon over a logging destination.
func openDaemonLogger(console *logger.StandardLogger, stateDir, logFilePath string) (logger.Logger, func() error) {
	if logFilePath == "" {
		logFilePath = filepath.Join(stateDir, "folderd.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		console.Warning("could not create log directory %s, logging to console only: %v", filepath.Dir(logFilePath), err)
		return console, console.Close
	}
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		console.Warning("could not open log file %s, logging to console only: %v", logFilePath, err)
		return console, console.Close
	}
	fileLogger := logger.NewStandardLogger(log.New(f, "", log.LstdFlags))
	multi := logger.NewMultiLogger(console, fileLogger)
	return multi, func() error {
		err := multi.Close()
		_ = f.Close()
		return err
	}
}

func stopDaemon(ctx *cli.Context) error {
	stateDir, err := paths.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}
	return daemon.StopRunning(afero.NewOsFs(), stateDir)
}

func printVersion(ctx *cli.Context) error {
	fmt.Println(version)
	return nil
}
