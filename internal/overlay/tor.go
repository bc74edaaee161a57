// Package overlay prepares and supervises the anonymizing overlay
// process. The session core itself only ever sees the local SOCKS5 port
// and the hostname file the overlay writes.
package overlay

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Process is a handle on a launched tor child.
type Process struct {
	cmd *exec.Cmd
}

// Harden restricts the data directory to its owner. Best-effort; the
// key material inside carries its own permissions.
func Harden(dataDir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if err := exec.Command("chmod", "-R", "1700", dataDir).Run(); err != nil {
		log.WithField("dir", dataDir).WithError(err).Debug("chmod failed")
	}
}

// WriteTorrc writes the overlay configuration: a SOCKS listener on
// socksPort and a v3 hidden service forwarding port 4545 to the local
// chat listener.
func WriteTorrc(dataDir string, socksPort, chatPort int) (string, error) {
	cfg := fmt.Sprintf(`ExcludeNodes SlowServer
SocksPort localhost:%d
DataDirectory %s
HiddenServiceDir %s
HiddenServiceVersion 3
HiddenServicePort 4545 localhost:%d
`,
		socksPort,
		filepath.Join(dataDir, "tor", "data"),
		filepath.Join(dataDir, "tor", "hidden"),
		chatPort,
	)

	path := filepath.Join(dataDir, "tor", "torrc")
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		return "", fmt.Errorf("write torrc: %w", err)
	}
	return path, nil
}

// Start writes the torrc and launches tor against it. A missing tor
// binary is not fatal to the caller: an externally managed overlay
// pointed at the same ports works just as well.
func Start(dataDir string, socksPort, chatPort int) (*Process, error) {
	torrc, err := WriteTorrc(dataDir, socksPort, chatPort)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("tor", "-f", torrc, "--quiet")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tor: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).Debug("tor exited")
		}
	}()

	log.WithField("pid", cmd.Process.Pid).Debug("tor started")
	return &Process{cmd: cmd}, nil
}

// Stop kills the child. Safe on an already-dead process.
func (p *Process) Stop() {
	if p == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Kill()
}
