// Package fileloc expands the file-path templates used for capture,
// transcode and thumbnail outputs.
package fileloc

import (
	"strconv"
	"strings"
)

// Expand substitutes {recordingID} in a path or command template.
func Expand(template string, recordingID int) string {
	return strings.ReplaceAll(template, "{recordingID}", strconv.Itoa(recordingID))
}
