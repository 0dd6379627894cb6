// Package buildinfo carries build-time metadata that is not part of user configuration.
package buildinfo

import "runtime"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context holds build metadata injected at startup through ldflags.
type Context struct {
	version   string
	buildDate string
	systemID  string
}

// NewContext creates a build context. Empty values read back as UnknownValue.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{version: version, buildDate: buildDate, systemID: systemID}
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// SystemID returns the per-process identifier used to correlate telemetry.
func (c *Context) SystemID() string {
	if c == nil || c.systemID == "" {
		return UnknownValue
	}
	return c.systemID
}

// Info is the JSON view of a build context served on the health endpoint.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Info returns the serializable build metadata.
func (c *Context) Info() Info {
	return Info{
		Version:   c.Version(),
		BuildDate: c.BuildDate(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
