// Package gridbench holds shared metadata for the gridbench tool.
package gridbench

// Version is the gridbench release version.
const Version = "0.3.0"
