// Package telemetry provides observability instrumentation for Confix.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging resolution runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "confix"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides field helpers with automatic context propagation:
//
//	logger := tel.Logger.WithRunID("run-123").WithSpec("math-library")
//	logger.Info("Resolving specification")
//	logger.WithError(err).Error("Resolution failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into each resolution run:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	span.SetAttributes(
//	    attribute.String("spec.name", spec),
//	    attribute.String("provider.name", provider),
//	)
//
//	span.AddEvent("validation.complete")
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track resolver behavior and performance:
//
//	tel.Metrics.RecordSessionStarted("resolve")
//	tel.Metrics.RecordAugment(added)
//	tel.Metrics.RecordProviderApplied("llvm")
//	tel.Metrics.RecordCheck("has-libm", failed)
//	tel.Metrics.RecordFinalize(duration.Seconds())
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishRunStarted(runID, manifest)
//	tel.Events.PublishSpecResolved(runID, spec, provider, component)
//	tel.Events.PublishCheckFailed(runID, spec, check, reason)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByProvider
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "manifest.resolve",
//	    attribute.String("run.id", runID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Resolving manifest")
//
//	// Run context
//	ctx = telemetry.WithRunContext(ctx, runID, manifest)
//	defer telemetry.EndRunContext(ctx, runID, status, err)
//
//	// Specification context
//	ctx = telemetry.WithSpecContext(ctx, runID, spec)
//	defer telemetry.EndSpecContext(ctx, runID, spec, provider, component, err)
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Interactive runs (console logs on stderr, tracing off)
//	cfg := telemetry.DefaultConfig()
//
//	// Non-interactive runs (JSON logs, unix timestamps)
//	cfg := telemetry.CIConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - confix_sessions_started_total{mode}
//   - confix_active_sessions
//   - confix_augments_resolved_total{status}
//   - confix_probe_retries_total
//   - confix_environment_resets_total
//   - confix_provider_applications_total{provider}
//   - confix_provider_detections_total{provider}
//   - confix_checks_executed_total{check,status}
//   - confix_finalize_duration_seconds
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
package telemetry
