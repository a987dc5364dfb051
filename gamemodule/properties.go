package gamemodule

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/google/renameio/v2"
)

// propertyLine matches "key=value" keeping the trailing whitespace
var propertyLine = regexp.MustCompile(`^\s*([^\s#=][^\s=]*)\s*=(.*?)(\s*)$`)

// UpdateConfig sets keys in a key=value properties file. Lines for other
// keys, comments and formatting are kept; keys not yet present are appended
// in sorted order. The file is created when missing.
func UpdateConfig(path string, settings map[string]string) error {
	pending := make(map[string]string, len(settings))
	for k, v := range settings {
		pending[k] = v
	}

	var out bytes.Buffer
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Split(scanLinesKeepEOL)
	for scanner.Scan() {
		line := scanner.Text()
		body, eol := strings.TrimSuffix(line, "\n"), ""
		if strings.HasSuffix(line, "\n") {
			eol = "\n"
		}
		m := propertyLine.FindStringSubmatch(body)
		if m != nil {
			if v, ok := pending[m[1]]; ok {
				out.WriteString(m[1] + "=" + v + m[3] + eol)
				delete(pending, m[1])
				continue
			}
		}
		out.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) > 0 && out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteString("\n")
	}
	for _, k := range keys {
		out.WriteString(k + "=" + pending[k] + "\n")
	}

	if err := renameio.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadConfig parses a key=value properties file
func ReadConfig(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if m := propertyLine.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			out[m[1]] = strings.TrimSpace(m[2])
		}
	}
	return out, nil
}

func scanLinesKeepEOL(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
