package logsvc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "API")
	logger.Enable(false)

	var exitCode int
	logger.exit = func(code int) { exitCode = code }

	tests := []struct {
		name      string
		log       func()
		wantLevel string
		wantKeys  []string
	}{
		{
			name:      "info with extras",
			log:       func() { logger.Info("server started", map[string]interface{}{"port": 4000}) },
			wantLevel: "info",
			wantKeys:  []string{"port"},
		},
		{
			name:      "error with user",
			log:       func() { logger.Error("boom", errors.New("kaboom"), user.User{ID: 7, Username: "jane"}) },
			wantLevel: "error",
			wantKeys:  []string{"error", "user_id", "username"},
		},
		{
			name:      "fatal exits",
			log:       func() { logger.Fatal("cannot start") },
			wantLevel: "fatal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()

			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "API", line["component"])
			for _, k := range tt.wantKeys {
				assert.Contains(t, line, k)
			}
		})
	}
	assert.Equal(t, 1, exitCode)
}
