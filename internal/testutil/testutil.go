// Package testutil provides shared helpers for aad-connect tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// SetupTestRedis starts an in-process Redis server and returns a client bound to it.
// Both are closed when the test finishes.
func SetupTestRedis(t TestingTB) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal("Failed to start miniredis:", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		mr.Close()
		t.Fatal("Failed to ping miniredis:", pingErr)
	}

	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis client close failed: %v", cerr)
		}
		mr.Close()
	})
	return mr, client
}

// SetupMockDB returns a sqlmock-backed *sql.DB. Expectations are verified on cleanup.
func SetupMockDB(t TestingTB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal("Failed to create sqlmock:", err)
	}
	t.Cleanup(func() {
		if expErr := mock.ExpectationsWereMet(); expErr != nil {
			t.Errorf("unmet sql expectations: %v", expErr)
		}
		if cerr := db.Close(); cerr != nil {
			t.Logf("sqlmock close failed: %v", cerr)
		}
	})
	return db, mock
}

// LogRecord is a decoded JSON log line.
type LogRecord map[string]any

// Level returns the record's level string (e.g. "WARN").
func (r LogRecord) Level() string {
	s, _ := r[slog.LevelKey].(string)
	return s
}

// Message returns the record's message.
func (r LogRecord) Message() string {
	s, _ := r[slog.MessageKey].(string)
	return s
}

// LogCapture collects JSON log output for assertions.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogger returns a debug-level JSON logger writing into a fresh LogCapture.
func NewLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

// Write implements io.Writer.
func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Records decodes every captured line.
func (c *LogCapture) Records() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []LogRecord
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec LogRecord
		if json.Unmarshal([]byte(line), &rec) == nil {
			out = append(out, rec)
		}
	}
	return out
}

// ByLevel returns the records at the given level ("DEBUG", "INFO", "WARN", "ERROR").
func (c *LogCapture) ByLevel(level string) []LogRecord {
	var out []LogRecord
	for _, rec := range c.Records() {
		if rec.Level() == level {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the first record with the given message.
func (c *LogCapture) Find(msg string) (LogRecord, bool) {
	for _, rec := range c.Records() {
		if rec.Message() == msg {
			return rec, true
		}
	}
	return nil, false
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}
