package platform

import (
	"bufio"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const ioregPath = "/usr/sbin/ioreg"

// HIDIdleTime is reported in nanoseconds since the last input event.
var hidIdlePattern = regexp.MustCompile(`"HIDIdleTime"\s*=\s*([0-9]+)`)

type idleProvider struct{}

func newIdleProvider() IdleProvider {
	if _, err := exec.LookPath(ioregPath); err != nil {
		return unsupportedIdleProvider{}
	}
	return &idleProvider{}
}

func (provider *idleProvider) IdleDuration() (time.Duration, error) {
	output, err := exec.Command(ioregPath, "-c", "IOHIDSystem").Output()
	if err != nil {
		return 0, fmt.Errorf("ioreg: %w", err)
	}
	return parseHIDIdleTime(string(output))
}

func parseHIDIdleTime(output string) (time.Duration, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		match := hidIdlePattern.FindStringSubmatch(scanner.Text())
		if len(match) != 2 {
			continue
		}
		nanos, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
		}
		return time.Duration(nanos), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan ioreg output: %w", err)
	}
	return 0, fmt.Errorf("HIDIdleTime not found")
}
