package manager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/domain"
)

// runServerCommand executes the server's start or stop shell command
// from the user's home directory.
func runServerCommand(ctx context.Context, srv *domain.Server, start bool, log *applog.Logger) error {
	var raw, label string
	if start {
		raw, label = srv.Commands.Start, "start"
	} else {
		raw, label = srv.Commands.Stop, "stop"
	}
	if raw == "" {
		return fmt.Errorf("server %q has no %s command", srv.Name, label)
	}

	fields := strings.Fields(raw)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Errorf("manager", "%s command for %s failed: %v (%s)", label, srv.Name, err, strings.TrimSpace(string(out)))
		return fmt.Errorf("running %s command: %w", label, err)
	}
	log.Infof("manager", "%s command for %s finished: %s", label, srv.Name, strings.TrimSpace(string(out)))
	return nil
}
