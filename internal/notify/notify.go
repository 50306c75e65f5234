// Package notify carries user-facing alerts out of the pipeline.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Notifier shows an alert to the user.
type Notifier interface {
	Success(title, message string)
	Failure(title, message string)
}

// Discard drops every alert.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Success(string, string) {}
func (discard) Failure(string, string) {}

// Logged writes alerts to a logger.
type Logged struct {
	Logger *slog.Logger
}

// Success logs at info.
func (l Logged) Success(title, message string) {
	l.Logger.Info(title, "message", message)
}

// Failure logs at warn.
func (l Logged) Failure(title, message string) {
	l.Logger.Warn(title, "message", message)
}

// Printer writes alerts to a terminal, one line each.
type Printer struct {
	W io.Writer
}

// Success prints the alert.
func (p Printer) Success(title, message string) {
	p.print(title, message)
}

// Failure prints the alert prefixed with "!".
func (p Printer) Failure(title, message string) {
	p.print("! "+title, message)
}

func (p Printer) print(title, message string) {
	if message == "" {
		fmt.Fprintln(p.W, title)
		return
	}
	fmt.Fprintf(p.W, "%s: %s\n", title, message)
}

// Alert is one recorded notification.
type Alert struct {
	Success bool
	Title   string
	Message string
}

// Recorder keeps alerts in memory, for headless surfaces that render them later.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Success records a success alert.
func (r *Recorder) Success(title, message string) {
	r.add(Alert{Success: true, Title: title, Message: message})
}

// Failure records a failure alert.
func (r *Recorder) Failure(title, message string) {
	r.add(Alert{Title: title, Message: message})
}

func (r *Recorder) add(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of everything recorded.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Last returns the latest alert.
func (r *Recorder) Last() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}
