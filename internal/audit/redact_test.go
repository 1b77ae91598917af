package audit

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSlog() *slog.Logger {
	return slog.Default()
}

func TestRedactContext_DropsPersonalKeys(t *testing.T) {
	got := redactContext(map[string]string{
		"Full_Name": "Jane Doe",
		"payload":   `{"everything":"here"}`,
		"provider":  "providerX",
	})
	assert.NotContains(t, got, "Full_Name")
	assert.NotContains(t, got, "payload")
	assert.Equal(t, "providerX", got["provider"])
}

func TestRedactContext_MasksEmbeddedValues(t *testing.T) {
	got := redactContext(map[string]string{
		"reason": "subject jane.doe+hr@corp.example.org asked via +44 20 7946 0958",
	})
	assert.NotContains(t, got["reason"], "jane.doe+hr@corp.example.org")
	assert.NotContains(t, got["reason"], "7946")
	assert.Contains(t, got["reason"], "[REDACTED]")
}

func TestRedactContext_EmptyInput(t *testing.T) {
	assert.Nil(t, redactContext(nil))
	assert.Nil(t, redactContext(map[string]string{}))
}
