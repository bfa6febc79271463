package resources

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"

	"worktally/internal/core/tracker"
)

// Status colours, shared with the terminal status bar.
const (
	ColorRunning = "#1C9813"
	ColorIdle    = "#C8A417"
	ColorStopped = "#BD0010"
)

const iconTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64" viewBox="0 0 64 64">
<circle cx="32" cy="32" r="28" fill="%s"/>
<circle cx="32" cy="32" r="20" fill="none" stroke="#FFFFFF" stroke-width="4"/>
<path d="M32 18 V32 L41 38" fill="none" stroke="#FFFFFF" stroke-width="4" stroke-linecap="round"/>
</svg>`

var iconCache sync.Map

// StatusColor returns the hex colour drawn for status.
func StatusColor(status tracker.Status) string {
	switch status {
	case tracker.StatusRunning:
		return ColorRunning
	case tracker.StatusIdle:
		return ColorIdle
	default:
		return ColorStopped
	}
}

// StatusIcon returns the tray icon for status.
func StatusIcon(status tracker.Status) fyne.Resource {
	return loadIcon(fmt.Sprintf("worktally-%s.svg", status), StatusColor(status))
}

// Logo returns the application icon.
func Logo() fyne.Resource {
	return loadIcon("worktally.svg", ColorRunning)
}

func loadIcon(name, color string) fyne.Resource {
	if cached, ok := iconCache.Load(name); ok {
		return cached.(fyne.Resource)
	}

	resource := fyne.NewStaticResource(name, []byte(fmt.Sprintf(iconTemplate, color)))
	actual, _ := iconCache.LoadOrStore(name, resource)
	return actual.(fyne.Resource)
}
