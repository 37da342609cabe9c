// Package instrumentation provides OpenTelemetry instrumentation for the authorization server.
//
// Metrics and traces are available for every layer:
//   - http: request counts and durations per endpoint
//   - server: authorization requests, logins, code issuance and exchange, refreshes,
//     introspections, revocations and rejected grants
//   - storage: operation counts, durations, sweeps and live record gauges
//   - security: rate limiting and audit events
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "oauth-test-server",
//		MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// When Enabled is false every provider is a no-op and recording costs nothing.
package instrumentation
