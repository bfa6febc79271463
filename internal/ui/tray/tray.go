package tray

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"worktally/internal/core/tracker"
	"worktally/resources"
)

const (
	menuTitle         = "WorkTally"
	revertLabel       = "Count frozen time anyway"
	notificationTitle = "Hibernation or freeze detected"
)

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnToggle      func()
	OnSwitch      func(subject string)
	OnPreferences func()
	OnQuit        func()
}

// Manager handles system tray state.
type Manager struct {
	app        fyne.App
	desktop    desktop.App
	statusItem *fyne.MenuItem
	toggleItem *fyne.MenuItem
	revertItem *fyne.MenuItem
	switchItem *fyne.MenuItem
	callbacks  Callbacks

	mu       sync.Mutex
	display  tracker.DisplayState
	subjects []string
	tickets  []*tracker.RevertTicket
}

// New creates a tray manager with the provided callbacks.
func New(app fyne.App, desktopApp desktop.App, callbacks Callbacks) *Manager {
	manager := &Manager{
		app:       app,
		desktop:   desktopApp,
		callbacks: callbacks,
		display:   tracker.DisplayState{Status: tracker.StatusStopped},
	}

	manager.statusItem = fyne.NewMenuItem("Status: starting...", nil)
	manager.statusItem.Disabled = true

	manager.toggleItem = fyne.NewMenuItem("Start tracking", func() {
		if manager.callbacks.OnToggle != nil {
			manager.callbacks.OnToggle()
		}
	})

	manager.revertItem = fyne.NewMenuItem(revertLabel, manager.revert)
	manager.revertItem.Disabled = true

	manager.switchItem = fyne.NewMenuItem("Switch project", nil)
	manager.switchItem.ChildMenu = fyne.NewMenu("")

	manager.refreshMenu()
	return manager
}

// SetDisplay updates the status line, toggle label and icon.
func (manager *Manager) SetDisplay(state tracker.DisplayState) {
	manager.mu.Lock()
	manager.display = state
	manager.statusItem.Label = StatusLine(state)
	manager.toggleItem.Label = toggleLabel(state.Status)
	manager.revertItem.Disabled = !manager.hasLiveTicketLocked()
	manager.mu.Unlock()

	if manager.desktop != nil {
		manager.desktop.SetSystemTrayIcon(resources.StatusIcon(state.Status))
	}
	manager.refreshMenu()
}

// SetSubjects rebuilds the switch submenu.
func (manager *Manager) SetSubjects(subjects []string) {
	manager.mu.Lock()
	manager.subjects = append([]string(nil), subjects...)
	items := make([]*fyne.MenuItem, 0, len(subjects))
	for _, subject := range manager.subjects {
		name := subject
		item := fyne.NewMenuItem(name, func() {
			if manager.callbacks.OnSwitch != nil {
				manager.callbacks.OnSwitch(name)
			}
		})
		item.Checked = name == manager.display.Subject
		items = append(items, item)
	}
	manager.switchItem.ChildMenu = fyne.NewMenu("", items...)
	manager.switchItem.Disabled = len(items) == 0
	manager.mu.Unlock()

	manager.refreshMenu()
}

// NotifyFreezeDetected keeps the ticket for the revert item and posts a
// desktop notification. It may be called from any goroutine.
func (manager *Manager) NotifyFreezeDetected(notice tracker.FreezeNotice) {
	manager.mu.Lock()
	if notice.Ticket != nil {
		manager.tickets = append(manager.tickets, notice.Ticket)
	}
	manager.mu.Unlock()

	fyne.Do(func() {
		manager.mu.Lock()
		manager.revertItem.Disabled = !manager.hasLiveTicketLocked()
		manager.mu.Unlock()
		manager.refreshMenu()

		if manager.app != nil {
			manager.app.SendNotification(fyne.NewNotification(notificationTitle, NotificationBody(notice)))
		}
	})
}

// StatusLine renders the status menu item.
func StatusLine(state tracker.DisplayState) string {
	return state.String()
}

// NotificationBody describes a freeze for the desktop notification.
func NotificationBody(notice tracker.FreezeNotice) string {
	return fmt.Sprintf("For %s. This time is not counted.", tracker.FormatDuration(int64(notice.Gap.Seconds())))
}

func toggleLabel(status tracker.Status) string {
	if status == tracker.StatusRunning {
		return "Stop tracking"
	}
	return "Start tracking"
}

// revert credits back every freeze that has not been reverted or expired.
func (manager *Manager) revert() {
	manager.mu.Lock()
	tickets := manager.tickets
	manager.tickets = nil
	manager.revertItem.Disabled = true
	manager.mu.Unlock()

	for _, ticket := range tickets {
		ticket.Revert()
	}
	manager.refreshMenu()
}

func (manager *Manager) hasLiveTicketLocked() bool {
	live := manager.tickets[:0]
	for _, ticket := range manager.tickets {
		if ticket.Live() {
			live = append(live, ticket)
		}
	}
	manager.tickets = live
	return len(live) > 0
}

func (manager *Manager) refreshMenu() {
	if manager.desktop == nil {
		return
	}

	manager.mu.Lock()
	menu := fyne.NewMenu(menuTitle,
		manager.statusItem,
		manager.toggleItem,
		manager.revertItem,
		fyne.NewMenuItemSeparator(),
		manager.switchItem,
		fyne.NewMenuItem("Preferences", func() {
			if manager.callbacks.OnPreferences != nil {
				manager.callbacks.OnPreferences()
			}
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() {
			if manager.callbacks.OnQuit != nil {
				manager.callbacks.OnQuit()
			}
		}),
	)
	manager.mu.Unlock()

	manager.desktop.SetSystemTrayMenu(menu)
}
