package config

import (
	"fmt"

	"github.com/wesleyorama2/ws/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the config key of the invalid field
	Path string

	// Message describes the validation error
	Message string
}

// Error returns the error message.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the configuration and returns every problem found.
// An empty slice indicates the configuration is valid.
func Validate(config *Config) []ValidationError {
	var errors []ValidationError

	if config.LogFormat != logging.FormatProduction && config.LogFormat != logging.FormatDevelopment {
		errors = append(errors, ValidationError{
			Path:    "log_format",
			Message: fmt.Sprintf("must be %q or %q", logging.FormatProduction, logging.FormatDevelopment),
		})
	}

	client := config.Client

	if client.Timeout < 0 {
		errors = append(errors, ValidationError{Path: "client.timeout", Message: "must not be negative"})
	}
	if client.ConnectTimeout < 0 {
		errors = append(errors, ValidationError{Path: "client.connect_timeout", Message: "must not be negative"})
	}
	if client.IdleTimeout < 0 {
		errors = append(errors, ValidationError{Path: "client.idle_timeout", Message: "must not be negative"})
	}
	if client.MaxConnections < 1 {
		errors = append(errors, ValidationError{Path: "client.max_connections", Message: "must be at least 1"})
	}
	if client.MaxConnectionsPerHost < 0 {
		errors = append(errors, ValidationError{Path: "client.max_connections_per_host", Message: "must not be negative"})
	}
	if client.MaxRedirects < 0 {
		errors = append(errors, ValidationError{Path: "client.max_redirects", Message: "must not be negative"})
	}
	if client.RateLimit < 0 {
		errors = append(errors, ValidationError{Path: "client.rate_limit", Message: "must not be negative"})
	}

	for name := range config.Headers {
		if name == "" {
			errors = append(errors, ValidationError{Path: "headers", Message: "header name must not be empty"})
		}
	}

	return errors
}
