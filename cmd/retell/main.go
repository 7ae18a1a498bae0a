package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rojolang/retell-demo-go/pkg/retell"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	envFile  string
	apiKey   string
	agentID  string
	listen   string
	endpoint string
	wsURL    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		retell.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "retell",
		Short:         "Retell agent call demo",
		Long:          "Token endpoint and terminal call controller for a Retell conversational agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			level := retell.ParseLogLevel(cfg.DebugLevel)
			if verbose {
				level = retell.DebugLevel
			}
			logConfig := retell.DefaultLogConfig()
			logConfig.Level = level
			retell.SetGlobalLogger(retell.NewLogger(logConfig))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Retell API key (overrides RETELL_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent-id", "", "Agent ID (overrides NEXT_PUBLIC_RETELL_AGENT_ID)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

// loadConfig applies flags on top of the environment.
func loadConfig() *retell.Config {
	var cfg *retell.Config
	if envFile != "" {
		cfg = retell.LoadConfig(envFile)
	} else {
		cfg = retell.NewConfig()
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if agentID != "" {
		cfg.AgentID = agentID
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if endpoint != "" {
		cfg.RegisterCallURL = endpoint
	}
	if wsURL != "" {
		cfg.CallWsEndpoint = wsURL
	}
	return cfg
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token endpoint",
		Long:  "Serve POST /api/register-call, GET /api/config, /healthz and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger := retell.GetGlobalLogger()
			if !cfg.IsConfigured() {
				logger.Warn(retell.MsgMissingConfig)
			}

			srv := retell.NewServer(cfg, retell.NewAPIClientFromConfig(cfg), logger, retell.NewMetrics(nil))
			httpServer := retell.NewHTTPServer(cfg.ListenAddr, srv)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.WithField("addr", cfg.ListenAddr).WithField("agent_id", cfg.AgentIDLabel()).Info("Token endpoint listening")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				logger.Info("Shutting down")
				return retell.Shutdown(httpServer, 5*time.Second)
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides RETELL_LISTEN_ADDR)")
	return cmd
}

func callCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Interactive call controller",
		Long:  "Press Enter to start or end a call with the agent; type q to quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger := retell.GetGlobalLogger()

			tokens := retell.NewTokenManager(cfg.RegisterCallURL, nil, cfg.FetchTimeoutDuration())
			client := retell.NewWebSocketClient(cfg.CallWsEndpoint, logger, cfg.DebugWebsocket)
			ctrl := retell.NewController(tokens, client, retell.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl.Open(ctx)
			defer ctrl.Close()

			out := cmd.OutOrStdout()
			render := func(v retell.View) { fmt.Fprintf(out, "\n%s\n", v) }
			handler := retell.CreateViewHandler(cfg.AgentID, render)
			if verbose {
				handler = retell.SequentialStateHandlers(handler, retell.CreateStateLoggingHandler(logger))
			}
			unsubscribe := ctrl.Subscribe(handler)
			defer unsubscribe()

			render(retell.RenderView(ctrl.State(), cfg.AgentID))
			return runCallLoop(ctx, cmd.InOrStdin(), ctrl)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Token endpoint URL (overrides RETELL_REGISTER_CALL_URL)")
	cmd.Flags().StringVar(&wsURL, "ws", "", "Call event stream URL (overrides RETELL_CALL_WS_ENDPOINT)")
	return cmd
}

// runCallLoop toggles on each input line until q, EOF or ctx ends. Toggles
// run in the background so the prompt stays responsive; the controller
// ignores toggles while a call is being set up.
func runCallLoop(ctx context.Context, in io.Reader, ctrl *retell.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || strings.EqualFold(line, "q") {
				return nil
			}
			go ctrl.Toggle(ctx)
		}
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register one call and print its credential",
		Long:  "POST to the token endpoint once and show the returned call credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			tokens := retell.NewTokenManager(cfg.RegisterCallURL, nil, cfg.FetchTimeoutDuration())

			cred, err := tokens.FetchCredential(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Call ID: %s\n", cred.CallID)
			fmt.Fprintf(out, "Access Token: %s\n", retell.MaskSecret(cred.AccessToken))
			if cred.ExpiresAt.IsZero() {
				fmt.Fprintln(out, "Expires: unknown (opaque token)")
			} else {
				fmt.Fprintf(out, "Expires: %s (in %s)\n", cred.ExpiresAt.Format(time.RFC3339), cred.TTL().Round(time.Second))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Token endpoint URL (overrides RETELL_REGISTER_CALL_URL)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			loadConfig().PrintConfig(cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues := loadConfig().Validate()
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "Configuration OK")
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(out, "- %s\n", issue)
			}
			return fmt.Errorf("%d configuration issue(s)", len(issues))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a .env template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ".env"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return godotenv.Write(map[string]string{
				"RETELL_API_KEY":              "",
				"NEXT_PUBLIC_RETELL_AGENT_ID": "",
				"RETELL_CALL_WS_ENDPOINT":     "",
			}, path)
		},
	})

	return cmd
}
