// Package observability provides the service's structured logging and
// Prometheus metrics.
package observability

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log categories. Every log line carries one so downstream aggregation can
// separate audit-relevant records from plumbing noise.
const (
	CategoryAuth     = "AUTH"
	CategoryRequest  = "REQUEST"
	CategoryRecord   = "RECORD"
	CategoryAccount  = "ACCOUNT"
	CategoryDispatch = "DISPATCH"
	CategoryServer   = "SERVER"
)

// NewLogger builds a JSON logger at the given level. Unknown levels fall
// back to info.
func NewLogger(level string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}
	log := logrus.New()
	log.SetOutput(output)
	log.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// WithCategory tags an entry with a log category.
func WithCategory(log logrus.FieldLogger, category string) *logrus.Entry {
	return log.WithField("category", category)
}
