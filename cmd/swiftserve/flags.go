package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/robert-malhotra/swiftserve/internal/query"
)

// parseColumns parses a column selector: "" selects every component, "1"
// a single column and "0,2" a list.
func parseColumns(s string) (query.Columns, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var cols query.Columns
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid column %q", part)
		}
		cols = append(cols, n)
	}
	return cols, nil
}

// readMask returns the mask text of --mask. A value starting with "@" names
// a file holding the mask and "@-" reads standard input.
func readMask(s string) (string, error) {
	if !strings.HasPrefix(s, "@") {
		return s, nil
	}
	name := s[1:]
	var (
		b   []byte
		err error
	)
	if name == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("reading mask: %w", err)
	}
	return string(b), nil
}

// maskSize returns size, or the number of rows the mask selects when size
// is negative.
func maskSize(field, text, dtype string, size int) (int, error) {
	if size >= 0 {
		return size, nil
	}
	m, err := query.ParseMask(field, text, dtype, 0)
	if err != nil {
		return 0, err
	}
	return int(m.Rows()), nil
}
