package platform

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// LaunchEntry describes the command the OS runs at login.
type LaunchEntry struct {
	AppName  string
	ExecPath string
	Args     []string
}

// Service defines OS-specific helpers needed by the application.
type Service interface {
	GetConfigDir() (string, error)
	EnableAutostart(entry LaunchEntry) error
	DisableAutostart(appName string) error
	AutostartEnabled(appName string) (bool, error)
}

type platformService struct{}

// NewService returns a platform-specific implementation.
func NewService() Service {
	return &platformService{}
}

// GetConfigDir returns the OS-standard configuration directory.
func (service *platformService) GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err == nil && configDir != "" {
		return configDir, nil
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return "", fmt.Errorf("get config dir: %w", errors.Join(err, homeErr))
	}

	return fallbackConfigDir(homeDir), nil
}

func (entry LaunchEntry) validate() error {
	if strings.TrimSpace(entry.AppName) == "" {
		return fmt.Errorf("app name is empty")
	}
	if entry.ExecPath == "" {
		return fmt.Errorf("exec path is empty")
	}
	return nil
}

func entryID(appName string) string {
	name := strings.ToLower(strings.TrimSpace(appName))
	if name == "" {
		name = "worktally"
	}
	return strings.ReplaceAll(name, " ", "-")
}

func quoteArg(arg string) string {
	if strings.ContainsAny(arg, " \t") && !strings.HasPrefix(arg, `"`) {
		return `"` + arg + `"`
	}
	return arg
}

func commandLine(entry LaunchEntry) string {
	parts := make([]string, 0, len(entry.Args)+1)
	parts = append(parts, quoteArg(entry.ExecPath))
	for _, arg := range entry.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}
