package observability

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies level and format to the global logrus logger.
func ConfigureLogging(out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if out != nil {
		log.SetOutput(out)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (expected text|json)", format)
	}
	return nil
}
