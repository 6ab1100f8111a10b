package sproxy

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// fileHeadroom covers stdio, the epoll descriptor, log and syslog sockets.
const fileHeadroom = 32

// EnsureFileLimit raises the soft RLIMIT_NOFILE so that links descriptors
// plus headroom fit. It never lowers the limit.
func EnsureFileLimit(links uint64) {
	limit := &unix.Rlimit{}
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, limit)
	if err != nil {
		log.Error().Msgf("error occur while getting OS limit of open files: %+v", err)
		return
	}
	needed := links + fileHeadroom
	if limit.Cur >= needed {
		return
	}
	if needed > limit.Max {
		log.Warn().Msgf("open files hard limit %d is below the %d needed", limit.Max, needed)
		needed = limit.Max
	}
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{
		Cur: needed,
		Max: limit.Max,
	})
	if err != nil {
		log.Error().Msgf("error occur while setting OS limit of open files: %+v", err)
		return
	}
	log.Info().Msgf("raised open files limit from %d to %d", limit.Cur, needed)
}
