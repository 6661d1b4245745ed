package runner

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// OutputFileEnv names the environment variable that tells a step where to
// write its outputs. Steps append `name=value` lines to that file; the
// engine reads it back after the step completes. This replaces the
// deprecated stdout-marker mechanism of the reference platform.
const OutputFileEnv = "LOOMCI_OUTPUT"

// ParseOutputs reads `name=value` lines. Blank lines and lines without a
// separator are ignored; later assignments win.
func ParseOutputs(r io.Reader) map[string]string {
	outputs := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		outputs[strings.TrimSpace(name)] = value
	}
	return outputs
}

// ReadOutputFile parses a step output file; a missing or empty file yields
// an empty map.
func ReadOutputFile(path string) map[string]string {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}
	}
	defer f.Close()
	return ParseOutputs(f)
}
