package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/vbfox/framelink"
	"github.com/vbfox/framelink/internal/adapters/natsbridge"
	"github.com/vbfox/framelink/internal/cliconfig"
	"github.com/vbfox/framelink/pkg/log"
)

const longHelp = `Talk to a half-duplex framed serial device over a TCP serial bridge.

framelink drives the link protocol (start-of-frame, checksum, ack/nak flow
control) for you:
  - send transmits a frame and waits for the link-level handshake.
  - query transmits a frame and waits for the device's answering frame.
  - monitor prints device-initiated frames and can republish them to NATS.

Configure via flags, FRAMELINK_* environment variables, or a TOML file
(default: $HOME/.framelink/config.toml).`

const exampleUsage = `  framelink send --address localhost:3333 0120
  framelink query --address localhost:3333 "01 15"
  framelink monitor --address localhost:3333 --nats-url nats://localhost:4222`

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func parsePayload(arg string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(arg)
	payload, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("payload is not valid hex: %w", err)
	}
	return payload, nil
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	logger := log.NewZerologAdapterWithLogger(zl)

	// resolveConfig layers file config and environment variables under any
	// explicitly set flags, then validates.
	resolveConfig := func(cmd *cobra.Command) error {
		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
		cmd.InheritedFlags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}
		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return err
			}
		}
		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))
		return nil
	}

	dial := func(ctx context.Context) (*framelink.Link, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		l, err := framelink.Dial(dialCtx, cfg.Address, framelink.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Address, err)
		}
		return l, nil
	}

	shutdown := func(l *framelink.Link) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Shutdown(ctx); err != nil {
			logger.Warn("link shutdown", log.Err(err))
		}
	}

	root := &cobra.Command{
		Use:     "framelink",
		Short:   "Talk to a half-duplex framed serial device",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.framelink/config.toml)")
	root.PersistentFlags().StringVar(&cfg.Address, "address", "", "TCP address of the serial bridge")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	root.PersistentFlags().DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "timeout for establishing the connection")
	root.PersistentFlags().DurationVar(&cfg.OpTimeout, "op-timeout", cfg.OpTimeout, "timeout for one send or query handshake")

	sendCmd := &cobra.Command{
		Use:   "send <hex-payload>",
		Short: "Transmit a frame and wait for the link handshake only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd); err != nil {
				return err
			}
			payload, err := parsePayload(args[0])
			if err != nil {
				return err
			}

			l, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(l)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.OpTimeout)
			defer cancel()
			if err := l.Send(ctx, framelink.NewDataFrame(payload)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Info("frame sent", log.Hex("payload", payload))
			return nil
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <hex-payload>",
		Short: "Transmit a frame and wait for the device's answering frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd); err != nil {
				return err
			}
			payload, err := parsePayload(args[0])
			if err != nil {
				return err
			}

			l, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(l)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.OpTimeout)
			defer cancel()
			answer, err := l.Query(ctx, framelink.NewDataFrame(payload))
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			fmt.Println(hex.EncodeToString(answer.Payload))
			return nil
		},
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print unsolicited frames, reconnecting as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd); err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cfg, cfgPath, logger, dial)
		},
	}
	monitorCmd.Flags().StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "republish unsolicited frames to this NATS server")
	monitorCmd.Flags().StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "NATS subject for republished frames")
	monitorCmd.Flags().DurationVar(&cfg.ReconnectMin, "reconnect-min", cfg.ReconnectMin, "minimum delay between reconnect attempts")
	monitorCmd.Flags().DurationVar(&cfg.ReconnectMax, "reconnect-max", cfg.ReconnectMax, "maximum delay between reconnect attempts")

	root.AddCommand(sendCmd, queryCmd, monitorCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runMonitor connects, streams unsolicited frames, and reconnects with
// backoff when the link dies. A config file watcher applies log-level changes
// without a restart.
func runMonitor(
	ctx context.Context,
	cfg cliconfig.Config,
	cfgPath string,
	logger *log.ZerologAdapter,
	dial func(context.Context) (*framelink.Link, error),
) error {
	watchPath := cfgPath
	if watchPath == "" {
		watchPath = cliconfig.DefaultConfigPath()
	}
	if watchPath != "" && cliconfig.FileExists(watchPath) {
		watcher := cliconfig.NewWatcher(watchPath, cfg, func(next cliconfig.Config) {
			zerolog.SetGlobalLevel(parseLevel(next.LogLevel))
		}, logger)
		go watcher.Run(ctx)
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("framelink-monitor"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		logger.Info("bridging unsolicited frames",
			log.String("url", cfg.NATSURL), log.String("subject", cfg.NATSSubject))
	}

	back := newBackoff(cfg.ReconnectMin, cfg.ReconnectMax)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		l, err := dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("connect failed, retrying", log.Err(err))
			back.Sleep(ctx)
			continue
		}
		back.Reset()
		logger.Info("connected", log.String("address", cfg.Address))

		monitorLink(ctx, l, nc, cfg.NATSSubject, logger)

		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("link lost, reconnecting")
		back.Sleep(ctx)
	}
}

// monitorLink consumes one link until it dies or ctx is cancelled.
func monitorLink(ctx context.Context, l *framelink.Link, nc *nats.Conn, subject string, logger *log.ZerologAdapter) {
	frames, cancel := l.Subscribe()
	defer cancel()

	if nc != nil {
		bridgeFrames, cancelBridge := l.Subscribe()
		defer cancelBridge()
		bridge := natsbridge.New(nc, subject, logger)
		go bridge.Run(ctx, bridgeFrames)
	}

	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := l.Shutdown(shutdownCtx); err != nil && !errors.Is(err, framelink.ErrLinkClosed) {
			logger.Warn("link shutdown", log.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				// The broadcaster closes when the link dies.
				return
			}
			logger.Info("unsolicited frame", log.Hex("payload", f.Payload))
		}
	}
}
