package sproxy

import (
	"fmt"
	"github.com/rs/zerolog/log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

const daemonEnv = "SPROXYD_DAEMONIZED"

// Daemonize re-executes the current binary in a new session with stdio on
// /dev/null. In the parent it reports true and the caller should exit; in
// the detached child it reports false.
func Daemonize() (bool, error) {
	if os.Getenv(daemonEnv) == "1" {
		return false, nil
	}
	executable, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("daemonize: %w", err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("daemonize: %w", err)
	}
	defer devNull.Close()

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("daemonize: %w", err)
	}
	return true, cmd.Process.Release()
}

// CreatePidFile writes the current pid, best effort.
func CreatePidFile(path string) {
	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	if err != nil {
		log.Warn().Msgf("can't write pid file %s: %+v", path, err)
	}
}

// RemovePidFile removes path if it still holds our pid.
func RemovePidFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		return
	}
	if err := os.Remove(path); err != nil {
		log.Warn().Msgf("can't remove pid file %s: %+v", path, err)
	}
}
