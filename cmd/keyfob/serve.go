package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/internal/api/server"
	"github.com/keyfob-io/keyfob/internal/audit"
	"github.com/keyfob-io/keyfob/internal/metrics"
	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/provider"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API",
	Long: `Serve the key management REST API.

The service exposes key import, generation, fingerprinting, signing,
and verification under /api/v1, plus /healthz, /readyz, and Prometheus
/metrics. Shuts down gracefully on SIGINT/SIGTERM.

A provider config preloads one key into the registry at startup, e.g.
a PKCS#11 token key or an ssh-agent identity the service signs with.

Examples:
  # Plain HTTP with an audit trail
  keyfob serve --addr :8080 --audit-log /var/log/keyfob/audit.jsonl

  # Preload a token key
  keyfob serve --addr :8080 --provider provider.yaml

  # TLS
  keyfob serve --addr :8443 --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

var (
	serveAddr     string
	serveProvider string
	serveTLSCert  string
	serveTLSKey   string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "Provider config to preload a key from (provider.yaml)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS key file (required with --tls-cert)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveTLSCert == "") != (serveTLSKey == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be given together")
	}

	// serve owns its shutdown; the default handler would exit mid-flight.
	disarmExitHandler()

	ctx := cmd.Context()
	surface, err := bind.Default()
	if err != nil {
		return err
	}

	if serveProvider != "" {
		cfg, err := provider.LoadConfig(serveProvider)
		if err != nil {
			return err
		}
		m, err := provider.New(*cfg).Load(ctx, *cfg)
		if err != nil {
			return fmt.Errorf("failed to load provider key: %w", err)
		}
		result, err := surface.Call(ctx, "acquire", bind.Args{
			Material: m,
			Source:   string(cfg.Type),
		})
		if err != nil {
			return err
		}
		info := result.(*bind.KeyInfo)
		fmt.Printf("Preloaded %s key: %s (%s), handle %d\n",
			cfg.Type, info.Fingerprint, info.Algorithm, info.Handle)
	}

	// Ring gauges plus API counters on the default registry.
	if err := metrics.Register(nil, surface.Ring().Stats); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	cfg := server.DefaultConfig()
	cfg.Addr = serveAddr
	cfg.TLSCert = serveTLSCert
	cfg.TLSKey = serveTLSKey

	fmt.Printf("keyfob %s serving on %s\n", version, serveAddr)
	if audit.Enabled() {
		fmt.Printf("Audit log: %s\n", auditLogPath)
	}

	return server.New(cfg, version, surface, nil).Start(ctx)
}
