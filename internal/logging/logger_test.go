package logging

import (
	"strings"
	"testing"
)

func TestSanitizeLogLineRedactsBearerTokens(t *testing.T) {
	line := `request header Authorization: Bearer sk-abcdef1234567890`
	sanitized := sanitizeLogLine(line)

	if strings.Contains(sanitized, "sk-abcdef1234567890") {
		t.Errorf("Bearer token leaked into log line: %s", sanitized)
	}
	if !strings.Contains(sanitized, "[REDACTED]") {
		t.Errorf("Expected redaction placeholder, got: %s", sanitized)
	}
}

func TestSanitizeLogLineRedactsAPIKeys(t *testing.T) {
	line := `provider config api_key=AIzaSyFakeKey12345 model=gemini`
	sanitized := sanitizeLogLine(line)

	if strings.Contains(sanitized, "AIzaSyFakeKey12345") {
		t.Errorf("API key leaked into log line: %s", sanitized)
	}
}

func TestSanitizeLogLineLeavesOrdinaryTextAlone(t *testing.T) {
	line := "task task-123 completed in 2.1s"
	if got := sanitizeLogLine(line); got != line {
		t.Errorf("Expected line unchanged, got: %s", got)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) should return a usable logger")
	}
	logger := NewComponentLogger("Test")
	if OrNop(logger) != logger {
		t.Error("OrNop should pass through non-nil loggers")
	}
}
