package migrate

import (
	"fmt"
	"strings"

	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/golang-migrate/migrate/v4"
)

var _ migrate.Logger = migrationLogger{}

// migrationLogger forwards migrate progress to the process logger.
type migrationLogger struct {
	schema string
}

func (l migrationLogger) Printf(format string, v ...any) {
	logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slogx.String("schema", l.schema))
}

func (migrationLogger) Verbose() bool {
	return false
}
