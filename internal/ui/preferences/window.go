package preferences

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// Window handles the preferences UI.
type Window struct {
	window      fyne.Window
	settings    Settings
	onSave      func(Settings)
	subject     *widget.Label
	idleMinutes *widget.Entry
	autoStart   *widget.Check
	launch      *widget.Check
}

// New creates a preferences window.
func New(app fyne.App, settings Settings, onSave func(Settings)) *Window {
	window := app.NewWindow("WorkTally Settings")

	subject := widget.NewLabel("")
	idleMinutes := widget.NewEntry()
	autoStart := widget.NewCheck("Start tracking when project files change", nil)
	launch := widget.NewCheck("Launch at login", nil)

	form := container.NewVBox(
		widget.NewLabelWithStyle("Project", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		subject,
		container.NewHBox(widget.NewLabel("Stop after idle for"), idleMinutes, widget.NewLabel("min")),
		autoStart,
		widget.NewLabelWithStyle("General", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		launch,
	)

	saveButton := widget.NewButton("Save", nil)
	cancelButton := widget.NewButton("Cancel", nil)
	buttons := container.NewHBox(saveButton, layout.NewSpacer(), cancelButton)

	window.SetContent(container.NewBorder(nil, buttons, nil, nil, form))
	window.Resize(fyne.NewSize(380, 240))
	window.SetCloseIntercept(window.Hide)

	prefs := &Window{
		window:      window,
		onSave:      onSave,
		subject:     subject,
		idleMinutes: idleMinutes,
		autoStart:   autoStart,
		launch:      launch,
	}
	prefs.UpdateSettings(settings)

	saveButton.OnTapped = prefs.handleSave
	cancelButton.OnTapped = func() {
		prefs.UpdateSettings(prefs.settings)
		window.Hide()
	}

	return prefs
}

// Show displays the preferences window.
func (prefs *Window) Show() {
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// SetSubject names the project whose settings are edited.
func (prefs *Window) SetSubject(subject string) {
	prefs.subject.SetText(subject)
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings Settings) {
	prefs.settings = settings
	prefs.idleMinutes.SetText(formatMinutes(settings.IdleThreshold))
	prefs.autoStart.SetChecked(settings.AutoStart)
	prefs.launch.SetChecked(settings.LaunchAtLogin)
}

func (prefs *Window) handleSave() {
	settings := prefs.settings

	if threshold, ok := parseMinutes(prefs.idleMinutes.Text); ok {
		settings.IdleThreshold = threshold
	}
	settings.AutoStart = prefs.autoStart.Checked
	settings.LaunchAtLogin = prefs.launch.Checked

	prefs.UpdateSettings(settings)
	if prefs.onSave != nil {
		prefs.onSave(settings)
	}
	prefs.window.Hide()
}

func formatMinutes(threshold time.Duration) string {
	minutes := threshold.Minutes()
	if minutes == float64(int64(minutes)) {
		return fmt.Sprintf("%d", int64(minutes))
	}
	return strconv.FormatFloat(minutes, 'f', -1, 64)
}

// parseMinutes accepts positive whole or fractional minutes.
func parseMinutes(value string) (time.Duration, bool) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	threshold := time.Duration(parsed * float64(time.Minute))
	if threshold < time.Second {
		return 0, false
	}
	return threshold, true
}
