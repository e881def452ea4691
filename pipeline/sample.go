package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unicode/utf8"
)

// SampleSaver persists the first document offered to it and ignores the rest.
type SampleSaver struct {
	path     string
	maxChars int
	saved    atomic.Bool
}

func NewSampleSaver(path string, maxChars int) *SampleSaver {
	return &SampleSaver{path: path, maxChars: maxChars}
}

// Offer writes body when this is the first call to win the flag. It reports
// whether this call did the write.
func (s *SampleSaver) Offer(body string) (bool, error) {
	if s == nil || s.path == "" {
		return false, nil
	}
	if !s.saved.CompareAndSwap(false, true) {
		return false, nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return true, fmt.Errorf("create sample dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(truncateChars(body, s.maxChars)), 0644); err != nil {
		return true, fmt.Errorf("write sample: %w", err)
	}
	return true, nil
}

func (s *SampleSaver) Saved() bool {
	return s != nil && s.saved.Load()
}

// truncateChars keeps the first n characters of s without splitting a rune.
func truncateChars(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
