package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		ctx           *Context
		wantVersion   string
		wantBuildDate string
		wantSystemID  string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty values", NewContext("", "", ""), UnknownValue, UnknownValue, UnknownValue},
		{"release", NewContext("1.2.0", "2026-10-01T12:00:00Z", "AB12-CD34-EF56"), "1.2.0", "2026-10-01T12:00:00Z", "AB12-CD34-EF56"},
		{"pre-release tag", NewContext("1.3.0-rc.1+build.7", "", ""), "1.3.0-rc.1+build.7", UnknownValue, UnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantVersion, tt.ctx.Version())
			assert.Equal(t, tt.wantBuildDate, tt.ctx.BuildDate())
			assert.Equal(t, tt.wantSystemID, tt.ctx.SystemID())
		})
	}
}

func TestContextInfo(t *testing.T) {
	t.Parallel()

	info := NewContext("1.0.0", "", "id").Info()
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, UnknownValue, info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.Info().Version)
}
