package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/vprism/vprism/internal/errs"
)

// readSymbolsFile parses a UTF-8 symbol file: one symbol per line, blank
// lines skipped, duplicates collapsed with input order preserved.
func readSymbolsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Validation("cli", "cannot read symbol file",
			map[string]any{"path": path}).WithCause(err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		symbols = append(symbols, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Validation("cli", "symbol file read failed",
			map[string]any{"path": path}).WithCause(err)
	}
	return dedupeSymbols(symbols), nil
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
