package logging

import "testing"

func TestNewRejectsInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "not-a-level"}, ComponentMain); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestNewDefaultsToStdoutWhenNoWriterConfigured(t *testing.T) {
	l, err := New(Config{}, ComponentQueue)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l == nil {
		t.Fatal("expected a logger instance")
	}
}

func TestWithComponentPreservesUnderlyingLogger(t *testing.T) {
	l, _ := New(Config{ToStdout: true}, ComponentMain)
	scoped := l.WithComponent(ComponentOrchestrator)
	if scoped.Logger != l.Logger {
		t.Error("expected WithComponent to share the underlying logrus.Logger")
	}
	if scoped.component != ComponentOrchestrator {
		t.Errorf("component = %s, want %s", scoped.component, ComponentOrchestrator)
	}
}
