// SPDX-License-Identifier: MIT

// Package cmd wires the command line to the capture session and its
// consumers.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bandtap/internal/audio"
	"bandtap/internal/config"
	applog "bandtap/internal/log"
	"bandtap/pkg/build"
)

// options are the command line overrides applied on top of the config file.
type options struct {
	configPath string
	device     int
	sampleRate float64
	window     string
	verbose    bool
	tui        bool
	pick       bool
	ws         bool
	wsAddr     string
	udp        bool
	udpTarget  string
	feed       bool
	record     bool
	recordDir  string
	fast       bool
}

// NewRootCommand builds the command tree. The root command runs the live
// session until ctx is done.
func NewRootCommand(ctx context.Context) *cobra.Command {
	return newRootCommand(ctx, &options{})
}

func newRootCommand(ctx context.Context, opts *options) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			return runLive(ctx, cfg, opts)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(opts, cmd.Flags()); err != nil {
				return err
			}
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Print the bands of a WAV or MP3 file as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			return runAnalyze(ctx, cfg, opts, args[0], cmd.OutOrStdout())
		},
	}
	analyzeCmd.Flags().BoolVar(&opts.fast, "fast", false,
		"Analyse as fast as the file decodes instead of in real time")

	rootCmd.AddCommand(listCmd, analyzeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "",
		fmt.Sprintf("Path to the YAML config file (default %q if present)", config.DefaultPath))
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&opts.window, "window", config.DefaultWindow,
		"Window function applied before the FFT (hann, hamming, blackman, rectangular, ...)")

	// Capture device
	f := rootCmd.Flags()
	f.IntVarP(&opts.device, "device", "d", config.DefaultDevice,
		"Capture device ID, usually a monitor or loopback source. Use 'list' to see available devices.")
	f.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.BoolVar(&opts.pick, "pick", false, "Choose the capture device interactively")

	// Consumers
	f.BoolVar(&opts.tui, "tui", false, "Show a live band meter")
	f.BoolVar(&opts.ws, "ws", false, "Serve the WebSocket feed and GET /bands")
	f.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWSAddress, "WebSocket listen address")
	f.BoolVar(&opts.udp, "udp", false, "Send binary band packets over UDP")
	f.StringVar(&opts.udpTarget, "udp-target", config.DefaultUDPTarget, "UDP target address")
	f.BoolVar(&opts.feed, "log-feed", false, "Log every snapshot at debug level")

	// Recording
	f.BoolVarP(&opts.record, "record", "r", false, "Also record the captured audio to WAV")
	f.StringVarP(&opts.recordDir, "output", "o", "", "Directory for recordings")

	return rootCmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(opts *options, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	if changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if changed("window") {
		cfg.Capture.Window = opts.window
	}
	if changed("device") {
		cfg.Capture.Device = opts.device
	}
	if changed("sample-rate") {
		cfg.Capture.SampleRate = opts.sampleRate
	}
	if changed("ws") {
		cfg.Transport.WSEnabled = opts.ws
	}
	if changed("ws-addr") {
		cfg.Transport.WSAddress = opts.wsAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = opts.udp
	}
	if changed("udp-target") {
		cfg.Transport.UDPTargetAddress = opts.udpTarget
	}
	if changed("log-feed") {
		cfg.Transport.LogEnabled = opts.feed
	}
	if changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = opts.recordDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applog.Configure(cfg.LogLevel, cfg.Verbose)
	return cfg, nil
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand(ctx)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
