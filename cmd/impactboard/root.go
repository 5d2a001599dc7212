package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/greendrive/impactboard"
	"github.com/greendrive/impactboard/pkg/logger"
)

// app carries what every command needs once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	flags      impactboard.Config

	cfg      *impactboard.Config
	logger   logger.Logger
	closeLog func() error
}

// Main runs the CLI with args. It can be called from tests without building the binary.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "impactboard",
		Short:         "Join, watch and finalize collaborative Impact Boards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.flags.APIURL, "api-url", "", "API root, e.g. http://localhost:8080")
	pf.StringVar(&a.flags.SocketURL, "socket-url", "", "channel endpoint (derived from --api-url when empty)")
	pf.StringVar(&a.flags.Token, "token", "", "bearer credential")
	pf.StringVar(&a.flags.Codec, "codec", "", "channel frame format: json or cbor")
	pf.StringVar(&a.flags.LogFormat, "log-format", "", "json, text or zerolog")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newWatchCmd(a),
		newFinalizeCmd(a),
		newWhoamiCmd(a),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags, in that order.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg := impactboard.NewConfig()
	if a.configPath != "" {
		if err := cfg.LoadConfigFile(a.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"api-url", &cfg.APIURL, a.flags.APIURL},
		{"socket-url", &cfg.SocketURL, a.flags.SocketURL},
		{"token", &cfg.Token, a.flags.Token},
		{"codec", &cfg.Codec, a.flags.Codec},
		{"log-format", &cfg.LogFormat, a.flags.LogFormat},
		{"log-level", &cfg.LogLevel, a.flags.LogLevel},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.dst = o.val
		}
	}

	l, closeLog, err := cfg.NewLogger(a.stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = l
	a.closeLog = closeLog
	return nil
}
