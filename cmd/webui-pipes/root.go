package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Dmi3yy/webui-pipes/internal/config"
	"github.com/Dmi3yy/webui-pipes/internal/runtime"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// errDenied makes the process exit 1 without printing an error.
var errDenied = errors.New("denied")

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func Run(args []string) ExitCode {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errDenied) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return exitCodeError
	}
	return exitCodeSuccess
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "webui-pipes",
		Short:         "Tool server for WebUI pipes, pipelines and knowledge tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format (text, json)")

	serve := newServeCmd(flags)
	root.RunE = serve.RunE
	root.AddCommand(
		serve,
		newPromptCmd(flags),
		newACLCmd(flags),
		newRunCmd(flags),
		newKeygenCmd(),
	)
	return root
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.DateTime,
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// newService builds a service for one-shot commands: no storage, no server.
func newService(cmd *cobra.Command, flags *globalFlags) (*runtime.Service, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Type = "none"
	return runtime.New(runtime.WithConfig(cfg), runtime.WithLogger(logger))
}
