package sproxy

import (
	"fmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"io"
	"log/syslog"
	"os"
)

const syslogTag = "sproxyd"

// InitLog configures the global zerolog logger from the [global] section.
// The returned closer releases the log file and syslog connection.
func InitLog(global Global) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	level, err := zerolog.ParseLevel(global.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", global.LogLevel, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var closers multiCloser
	var out io.Writer = os.Stdout
	if global.LogFile != "" {
		file, err := os.OpenFile(global.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, file)
		out = file
	}
	writers := []io.Writer{out}
	if global.SyslogEnabled {
		writer, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, syslogTag)
		if err != nil {
			_ = closers.Close()
			return nil, fmt.Errorf("connect syslog: %w", err)
		}
		closers = append(closers, writer)
		writers = append(writers, zerolog.SyslogLevelWriter(writer))
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closers, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
