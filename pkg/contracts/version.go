// Package contracts holds the shared contract surface: domain types, event
// protocol and version metadata.
package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the service
	Version = "0.1.0"

	// APIVersion is the version of the HTTP API
	APIVersion = "v1"

	// EventProtocolVersion is the version of the event stream protocol
	EventProtocolVersion = "1.0"
)

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	APIVersion    string `json:"api_version"`
	EventProtocol string `json:"event_protocol"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		APIVersion:    APIVersion,
		EventProtocol: EventProtocolVersion,
	}
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	return fmt.Sprintf("licbind registry v%s", Version)
}
