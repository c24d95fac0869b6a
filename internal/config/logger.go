package config

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger. LOG_LEVEL=debug switches the
// development config on; production JSON output otherwise.
func NewLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
