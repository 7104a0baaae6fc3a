// ABOUTME: Package documentation for config
// ABOUTME: Describes YAML loading, env expansion, and duration parsing

// Package config handles configuration loading for ai-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  sweep_interval: "30s"
//	  inactivity_window: "10m"
//	providers:
//	  request_timeout: "120s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8080"
//	  base_port: 8090
//	  max_port_attempts: 10
//
// Provider settings:
//
//	providers:
//	  default: "anthropic"
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//	    model: "claude-sonnet-4-5"
//	  bedrock:
//	    region: "us-east-1"
//	  openai:
//	    endpoint: "https://api.openai.com/v1/chat/completions"
//	    api_key: "${OPENAI_API_KEY}"
package config
