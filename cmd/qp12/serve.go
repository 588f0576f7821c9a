package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/internal/api/server"
	"github.com/remiblancher/qp12/internal/logging"
)

// Serve command flags
var (
	servePort    int
	serveHost    string
	serveTLSCert string
	serveTLSKey  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health                      Health check
  GET  /ready                       Provider readiness
  POST /api/v1/pkcs12               Build a container
  POST /api/v1/pkcs12/repassphrase  Change a container passphrase
  POST /api/v1/pkcs12/inspect       Inspect a container
  GET  /api/v1/providers            Provider probe

Containers are exchanged as base64, keys and certificates as PEM.
Logs are JSON unless log.format says otherwise.

Environment variables:
  QP12_HOST  Host to bind to
  QP12_PORT  Port to listen on

Examples:
  qp12 serve --port 8080
  qp12 serve --port 8443 --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: 8443)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := serverConfig(cmd)
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be set together")
	}

	format := appConfig.Log.Format
	if format == "" {
		format = "json"
	}
	l, err := logging.New(cmd.ErrOrStderr(), appConfig.Log.Level, format)
	if err != nil {
		return err
	}

	codec := newCodec(appConfig, l, cmd.ErrOrStderr())
	srv := server.New(cfg, version, codec, l)
	srv.PrintEndpoints(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndRun(ctx)
}

// serverConfig merges the loaded configuration with the command flags.
func serverConfig(cmd *cobra.Command) *server.Config {
	sc := appConfig.Server
	cfg := &server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		TLSCert:         sc.TLSCert,
		TLSKey:          sc.TLSKey,
		MaxBodyBytes:    sc.MaxBodyBytes,
		RateLimit:       sc.RateLimit,
		RateBurst:       sc.RateBurst,
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     sc.IdleTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("tls-cert") {
		cfg.TLSCert = serveTLSCert
	}
	if flags.Changed("tls-key") {
		cfg.TLSKey = serveTLSKey
	}
	return cfg
}

