package listfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read list file %s: %v", domain.ErrMalformedInput, path, err)
	}
	return data, nil
}

// parsePlain reads a newline-delimited list.
//
// Behavior:
//   - '#' starts a comment, whole-line or inline
//   - surrounding whitespace and a leading BOM are trimmed
//   - empty lines are skipped
//   - duplicates keep their first position
func (r *Reader) parsePlain(data []byte, source string) (Result, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	c := newCollector(r)
	r.logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		c.offer(fmt.Sprintf("line %d", lineNum), line)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return Result{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	r.logger.Debug(map[string]any{"source": source, "count": len(c.sites)}, "parse_plain_list_done")
	return c.result(), nil
}
