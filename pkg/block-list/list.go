package blocklist

import (
	"os"
	"strings"
	"sync"
)

// List is a durable, append-only set of URLs backed by a
// newline-delimited text file. Entries are loaded once at startup and
// appended synchronously as they are added; membership is never
// revoked within a process lifetime.
type List struct {
	mu      sync.RWMutex
	path    string
	entries []string
	index   map[string]struct{}
}

// Load reads the list from the given file. A missing file yields an
// empty list; the file is created on the first Add.
func Load(path string) (*List, error) {
	l := &List{
		path:  path,
		index: make(map[string]struct{}),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		l.entries = append(l.entries, line)
		l.index[line] = struct{}{}
	}
	return l, nil
}

// Contains reports whether url is an exact member of the list.
func (l *List) Contains(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[url]
	return ok
}

// MatchesPrefix reports whether any entry is a prefix of url.
func (l *List) MatchesPrefix(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, entry := range l.entries {
		if strings.HasPrefix(url, entry) {
			return true
		}
	}
	return false
}

// Add appends url to the durable store and the in-memory set.
// Adding an existing entry is a no-op.
func (l *List) Add(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[url]; ok {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(url + "\n"); err != nil {
		return err
	}
	l.entries = append(l.entries, url)
	l.index[url] = struct{}{}
	return nil
}

// Len returns the number of entries in the list.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
