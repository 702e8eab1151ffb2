// Package audit provides the shared audit-log collaborator.
//
// Every artifact write in the pipeline records an event (script name,
// message, status) to a shared log that other tooling also appends to. The
// collaborator is injected as an interface so the core never hard-depends on
// its availability: a recording failure is the caller's to log and swallow,
// never to propagate.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/user"
	"sync"
	"time"
)

// Status values recorded with each event.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// ScriptName identifies this pipeline in the shared log.
const ScriptName = "claims_repricer"

// Event is one audit-log entry.
type Event struct {
	Timestamp time.Time
	User      string
	Script    string
	Message   string
	Status    string
}

// Logger records audit events. Implementations must be safe for concurrent
// use; Record errors are advisory only and must never abort processing.
type Logger interface {
	Record(event Event) error
}

// NewEvent builds an event stamped with the current time and OS user.
func NewEvent(script, message, status string) Event {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return Event{
		Timestamp: time.Now(),
		User:      username,
		Script:    script,
		Message:   message,
		Status:    status,
	}
}

// NopLogger discards all events. It is the default when no shared log is
// configured.
type NopLogger struct{}

// Record implements Logger
func (NopLogger) Record(Event) error { return nil }

// CSVLogger appends events to a shared CSV log file. The on-disk format is
// the contract other tooling reads, so rows are always
// timestamp,user,script,message,status.
type CSVLogger struct {
	path string
	mu   sync.Mutex
}

var csvHeader = []string{"Timestamp", "User", "Script", "Message", "Status"}

// NewCSVLogger creates a logger appending to the shared log at path.
func NewCSVLogger(path string) *CSVLogger {
	return &CSVLogger{path: path}
}

// Record implements Logger
func (l *CSVLogger) Record(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := false
	if info, err := os.Stat(l.path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open audit log %s: %w", l.path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write audit log header: %w", err)
		}
	}

	row := []string{
		event.Timestamp.Format("2006-01-02 15:04:05"),
		event.User,
		event.Script,
		event.Message,
		event.Status,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	w.Flush()
	return w.Error()
}
