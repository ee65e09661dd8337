package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Setting nil installs a no-op and must not call the previous logger.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})

	Opsf("search exhausted after %d subsets", 7)
	Diagf("candidate edges=%d", 3)
	Tracef("dropped: trace stream disabled")

	if !strings.Contains(ops.String(), "[calib] ") || !strings.Contains(ops.String(), "after 7 subsets") {
		t.Errorf("ops output = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "candidate edges=3") {
		t.Errorf("diag output = %q", diag.String())
	}
	if strings.Contains(ops.String()+diag.String(), "dropped") {
		t.Error("trace line leaked into another stream")
	}

	SetLogWriters(LogWriters{})
	ops.Reset()
	Opsf("should not appear")
	if ops.Len() > 0 {
		t.Errorf("output after disabling = %q, want empty", ops.String())
	}
}
