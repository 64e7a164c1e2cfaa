// Package state manages a deployment directory: its lifecycle marker, the
// copy of the create-time config and the process lock.
package state

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"meowstore/pkg/logger"
	"meowstore/pkg/store/engine"
)

// Status is the lifecycle marker stored in <root>/status.
type Status string

const (
	StatusNew      Status = "new"
	StatusExisting Status = "existing"
)

var (
	// ErrCorrupted means the marker holds an unknown value.
	ErrCorrupted = errors.New("deployment status is corrupted")
	// ErrNotCreated means the directory has no marker.
	ErrNotCreated = errors.New("deployment has not been created")
	// ErrAlreadyCreated is returned by Create on an initialized directory.
	ErrAlreadyCreated = errors.New("deployment already created")
)

// Mode maps the marker to the mode the databases must be opened in.
func (s Status) Mode() (engine.OpenMode, error) {
	switch s {
	case StatusNew:
		return engine.ModeNew, nil
	case StatusExisting:
		return engine.ModeExisting, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrCorrupted, string(s))
	}
}

// ReadStatus returns the marker of the deployment at root.
func ReadStatus(root string) (Status, error) {
	b, err := os.ReadFile(PathsFor(root).Status)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotCreated, root)
		}
		return "", err
	}
	st := Status(strings.TrimSpace(string(b)))
	if _, err := st.Mode(); err != nil {
		return "", err
	}
	return st, nil
}

// WriteStatus replaces the marker atomically.
func WriteStatus(root string, st Status) error {
	if _, err := st.Mode(); err != nil {
		return err
	}
	p := PathsFor(root).Status
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(st), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		return err
	}
	logger.Debug("status_written", "root", root, "status", string(st))
	return nil
}

// Create initializes root: it writes the create config copy and marks the
// deployment new. createConfig may be nil.
func Create(root string, createConfig []byte) error {
	if _, err := os.Stat(PathsFor(root).Status); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyCreated, root)
	}
	if err := EnsureDir(root); err != nil {
		return err
	}
	if createConfig != nil {
		if err := os.WriteFile(PathsFor(root).Create, createConfig, 0o600); err != nil {
			return fmt.Errorf("write create config: %w", err)
		}
	}
	if err := WriteStatus(root, StatusNew); err != nil {
		return err
	}
	logger.Info("deployment_created", "root", root)
	return nil
}
