package discovery

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// FileProvider returns URLs listed in a file, one per line. The query is ignored, which
// makes it useful for curated source lists and offline runs.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	file, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var results []Result
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimRight(line, ", \t")
		if line == "" {
			continue
		}

		results = append(results, Result{URL: line})
		if limit > 0 && len(results) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file at line %d: %w", lineNum, err)
	}
	return results, nil
}
