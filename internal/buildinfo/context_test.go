package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"nil context", nil, UnknownValue},
		{"empty version", NewContext("", "2024-03-14"), UnknownValue},
		{"valid version", NewContext("1.2.0", "2024-03-14"), "1.2.0"},
		{"pre-release tag", NewContext("1.2.0-rc.1", "2024-03-14"), "1.2.0-rc.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.Version())
		})
	}
}

func TestContextBuildDate(t *testing.T) {
	assert.Equal(t, UnknownValue, (*Context)(nil).BuildDate())
	assert.Equal(t, UnknownValue, NewContext("1.2.0", "").BuildDate())
	assert.Equal(t, "2024-03-14T08:30:00Z", NewContext("1.2.0", "2024-03-14T08:30:00Z").BuildDate())
}
