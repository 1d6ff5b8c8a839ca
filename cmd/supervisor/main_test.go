package main

import (
	"testing"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBrokerPort_DryRunWrappedInCircuitBreaker(t *testing.T) {
	cfg := &config.Config{Safety: config.SafetyConfig{DryRun: true}}
	port, err := newBrokerPort(cfg)
	require.NoError(t, err)
	_, ok := port.(*broker.CircuitBreakerBroker)
	assert.True(t, ok)
}

func TestNewBrokerPort_LiveWithoutClientFails(t *testing.T) {
	cfg := &config.Config{
		Safety: config.SafetyConfig{DryRun: false},
		Broker: config.BrokerConfig{Provider: "tinkoff"},
	}
	_, err := newBrokerPort(cfg)
	assert.Error(t, err)
}

func TestNewLogrusLogger_UsesConfiguredLevel(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvironmentConfig{Mode: "paper", LogLevel: "warn"}}
	entry := newLogrusLogger(cfg)
	assert.Equal(t, "warn", entry.Logger.GetLevel().String())
}

func TestNewLogrusLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvironmentConfig{Mode: "paper", LogLevel: "not-a-level"}}
	entry := newLogrusLogger(cfg)
	assert.Equal(t, "info", entry.Logger.GetLevel().String())
}
