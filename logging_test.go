package molrt

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWriterLogger("grid", false, &out, &errOut)

	l.Debugf("hidden %d", 1)
	l.Infof("built %d cells", 8)
	l.Warnf("slow frame")
	l.Errorf("fatal: %s", "boom")

	if strings.Contains(out.String(), "hidden") {
		t.Errorf("debug line written while debug disabled: %q", out.String())
	}
	if !strings.Contains(out.String(), "[grid] INFO: built 8 cells") {
		t.Errorf("missing info line, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "[grid] WARN: slow frame") {
		t.Errorf("missing warn line, got %q", errOut.String())
	}
	if !strings.Contains(errOut.String(), "[grid] ERROR: fatal: boom") {
		t.Errorf("missing error line, got %q", errOut.String())
	}

	l.SetDebug(true)
	l.Debugf("visible")
	if !strings.Contains(out.String(), "DEBUG: visible") {
		t.Errorf("debug line missing after SetDebug(true)")
	}
}

func TestNamedLoggerExtendsPrefix(t *testing.T) {
	var out bytes.Buffer
	l := NewWriterLogger("molrt", false, &out, &out).Named("offline")
	l.Infof("stop")
	if !strings.Contains(out.String(), "[molrt/offline] INFO: stop") {
		t.Errorf("unexpected prefix: %q", out.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := NewDefaultLogger("", false)
	if OrNop(l) != Logger(l) {
		t.Errorf("OrNop should return the given logger")
	}
}
