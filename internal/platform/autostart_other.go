//go:build !linux && !darwin && !windows

package platform

import (
	"errors"
	"path/filepath"
)

var errAutostartUnsupported = errors.New("autostart unsupported on this platform")

func (service *platformService) EnableAutostart(entry LaunchEntry) error {
	return errAutostartUnsupported
}

func (service *platformService) DisableAutostart(appName string) error {
	return nil
}

func (service *platformService) AutostartEnabled(appName string) (bool, error) {
	return false, nil
}

func fallbackConfigDir(homeDir string) string {
	return filepath.Join(homeDir, ".config")
}
