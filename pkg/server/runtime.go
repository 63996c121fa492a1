package server

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/devicelab-dev/appium-compat/pkg/core"
)

// RuntimeLocator resolves the home directory of an installed runtime
// version.
type RuntimeLocator interface {
	Locate(ctx context.Context, version string) (string, error)
}

// JavaHomeLocator asks the macOS java_home tool for a JDK.
type JavaHomeLocator struct {
	Path string
}

// NewJavaHomeLocator uses the system java_home.
func NewJavaHomeLocator() *JavaHomeLocator {
	return &JavaHomeLocator{Path: "/usr/libexec/java_home"}
}

// Locate runs "java_home -v <version>" and returns its trimmed output.
func (l *JavaHomeLocator) Locate(ctx context.Context, version string) (string, error) {
	out, err := exec.CommandContext(ctx, l.Path, "-v", version).Output()
	if err != nil {
		return "", core.ErrRuntimeNotFound.
			WithMessage(fmt.Sprintf("java %s is not installed", version)).
			WithCause(err)
	}
	home := strings.TrimSpace(string(out))
	if home == "" {
		return "", core.ErrRuntimeNotFound.WithMessage(fmt.Sprintf("java_home returned nothing for %s", version))
	}
	return home, nil
}
