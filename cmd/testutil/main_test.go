package main

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRun_RequiresAtLeastOneChannel(t *testing.T) {
	err := run([]string{"-hostname", "example.com"}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "channel name is required") {
		t.Fatalf("expected a missing-channel error, got %v", err)
	}
}

func TestRun_RejectsUnknownLogLevel(t *testing.T) {
	err := run([]string{"-loglevel", "not-a-level", "/foo/bar"}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "loglevel") {
		t.Fatalf("expected a log level parse error, got %v", err)
	}
}

func TestRun_RejectsUnknownFlag(t *testing.T) {
	err := run([]string{"-nonexistent", "/foo/bar"}, discardLogger())
	if err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}
