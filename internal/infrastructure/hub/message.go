package hub

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go-content-push/internal/domain/content"
)

var keepAliveFrame = []byte(": keepalive\n\n")

// EncodeContent returns the wire JSON for c.
func EncodeContent(c content.Content) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	return data, nil
}

// FormatEvent frames data as a single SSE event, one data field per line.
func FormatEvent(data []byte) []byte {
	var buf bytes.Buffer
	for _, line := range splitLines(data) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// splitLines splits on \n, \r\n and \r. Empty input yields one empty line.
func splitLines(data []byte) [][]byte {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))
	lines := bytes.Split(normalized, []byte("\n"))
	if len(lines) > 1 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}
