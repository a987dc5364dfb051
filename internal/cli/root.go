// Package cli implements the alphagsm command line.
//
//	alphagsm [flags] SERVER COMMAND [ARGS]
//	alphagsm [flags] COUNT SERVER... COMMAND [ARGS]
//	alphagsm [flags] USER/SERVER COMMAND [ARGS]
//
// A single local server runs in process. Several servers, or servers owned
// by another user, run as one alphagsm child each with their output
// multiplexed onto stdout.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SectorAlpha/AlphaGSM"
	"github.com/SectorAlpha/AlphaGSM/internal/logging"
	"github.com/SectorAlpha/AlphaGSM/server"
	"github.com/SectorAlpha/AlphaGSM/settings"
)

// app holds everything a run of the command line needs
type app struct {
	logLevel     string
	logFile      string
	settingsPath string

	settings settings.Settings
	logger   *slog.Logger
	cleanup  func()

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	newEnv     func(settings.Settings, *slog.Logger) server.Env
	executable func() (string, error)
}

func newApp() *app {
	return &app{
		in:         os.Stdin,
		out:        os.Stdout,
		errOut:     os.Stderr,
		newEnv:     server.NewEnv,
		executable: os.Executable,
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alphagsm [flags] [COUNT] SERVER... COMMAND [ARGS]",
		Short: "Game server manager",
		Long: "alphagsm sets up, starts, stops and talks to game servers running in screen sessions.\n\n" +
			"Use 'alphagsm SERVER create MODULE' to make a server and 'alphagsm \"*\" help' to list commands.",
		Version:       alphagsm.Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.cleanup != nil {
				a.cleanup()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error (default from settings)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write JSON logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "user settings file (default ~/.alphagsm/alphagsm.toml)")
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	return cmd
}

// setup loads settings and configures logging
func (a *app) setup() error {
	s, err := settings.Load(settings.SystemPath(), a.settingsPath)
	if err != nil {
		return err
	}
	a.settings = s

	level := s.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	file := s.Log.File
	if a.logFile != "" {
		file = a.logFile
	}
	if file != "" {
		cleanup, err := logging.Setup(file, logging.ParseLevel(level))
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.cleanup = cleanup
	} else {
		logging.SetupConsole(a.errOut, logging.ParseLevel(level))
	}
	a.logger = slog.Default()
	return nil
}

// globalArgs repeats the global flags for child processes
func (a *app) globalArgs() []string {
	var args []string
	for _, f := range []struct{ flag, value string }{
		{"--log-level", a.logLevel},
		{"--log-file", a.logFile},
		{"--settings", a.settingsPath},
	} {
		if f.value != "" {
			args = append(args, f.flag, f.value)
		}
	}
	return args
}

// Execute runs the command line with ctx, which is cancelled on interrupt
func Execute(ctx context.Context) error {
	return newRootCmd(newApp()).ExecuteContext(ctx)
}
