package session

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records published log entries in memory.
type capturePublisher struct {
	mu      sync.Mutex
	subject string
	entries []LogEntry
	err     error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subject = subject
	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	p.entries = append(p.entries, entry)
	return nil
}

func (p *capturePublisher) last(t *testing.T) LogEntry {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.entries)
	return p.entries[len(p.entries)-1]
}

func TestLoggerPublishesEntries(t *testing.T) {
	pub := &capturePublisher{}
	sl := NewLogger("headless", "sess-42", pub, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	sl.Info("session active")
	entry := pub.last(t)
	assert.Equal(t, "xr.logs.sess-42", pub.subject)
	assert.Equal(t, LogLevelInfo, entry.Level)
	assert.Equal(t, "headless", entry.Backend)
	assert.Equal(t, "sess-42", entry.SessionID)
	assert.Equal(t, "session active", entry.Message)
	assert.Empty(t, entry.Detail)
	assert.NotEmpty(t, entry.Timestamp)

	sl.Warn("frame poll timed out")
	assert.Equal(t, LogLevelWarn, pub.last(t).Level)

	sl.Debug("request abandoned")
	assert.Equal(t, LogLevelDebug, pub.last(t).Level)
}

func TestLoggerAttachesErrorDetail(t *testing.T) {
	pub := &capturePublisher{}
	sl := NewLogger("headless", "sess-7", pub, nil)

	sl.Error("device lost", stderrors.New("usb unplugged"))
	entry := pub.last(t)
	assert.Equal(t, LogLevelError, entry.Level)
	assert.Contains(t, entry.Detail, "usb unplugged")
}

func TestLoggerWithoutPublisherStaysLocal(t *testing.T) {
	sl := NewLogger("headless", "sess-9", nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	// Must not panic or publish anywhere.
	sl.Info("session active")
	sl.Error("device lost", stderrors.New("gone"))
}

func TestLoggerSurvivesPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: stderrors.New("connection draining")}
	sl := NewLogger("headless", "sess-11", pub, nil)
	sl.Info("session active")
	assert.Empty(t, pub.entries)
}
