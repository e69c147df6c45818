package main

import (
	"chatpulse/internal/platform/config"
	"chatpulse/pkg/platform/circuit"
)

// breakerOptions applies the configured thresholds to the gateway-wide
// breaker and to every per-connection breaker.
func breakerOptions(cfg config.GatewayConfig) []circuit.Option {
	return []circuit.Option{
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	}
}
