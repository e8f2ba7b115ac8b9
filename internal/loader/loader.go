// Package loader reads plain-text documents from disk. Anything beyond
// .txt and .md is someone else's job: the core only ever sees extracted
// text.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is raw extracted text with a human-meaningful source name.
type Document struct {
	Source string
	Text   string
}

// Load resolves each pattern (glob or literal path) and reads every
// matching .txt or .md file. A pattern that matches nothing readable is
// an error; silently indexing nothing helps no one.
func Load(patterns []string) ([]Document, error) {
	var docs []Document
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !isTextFile(m) {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", m, err)
			}
			docs = append(docs, Document{
				Source: filepath.Base(m),
				Text:   string(data),
			})
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no .txt or .md documents matched %v", patterns)
	}
	return docs, nil
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}
