package blocklist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "error_list"))
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Fatalf("List has %d entries", l.Len())
	}
}

func TestLoadSkipsEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_list")
	if err := os.WriteFile(path, []byte("http://a.com/x\n\nhttp://b.com/y\n"), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Fatalf("List has %d entries", l.Len())
	}
	if !l.Contains("http://a.com/x") || !l.Contains("http://b.com/y") {
		t.Fatal("Loaded entries missing")
	}
}

func TestAddIsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_list")
	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Add("http://gone.example.com/"); err != nil {
		t.Fatal(err)
	}
	if !l.Contains("http://gone.example.com/") {
		t.Fatal("Added entry not in memory")
	}
	// a restart reloads the full durable set
	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Contains("http://gone.example.com/") {
		t.Fatal("Added entry not reloaded from file")
	}
}

func TestAddExistingIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ad_list")
	l, _ := Load(path)
	l.Add("http://ads.example.com/")
	l.Add("http://ads.example.com/")
	if l.Len() != 1 {
		t.Fatalf("List has %d entries", l.Len())
	}
}

func TestMatchesPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ad_list")
	l, _ := Load(path)
	l.Add("http://ads.")
	if !l.MatchesPrefix("http://ads.doubleclick.net/banner.gif") {
		t.Fatal("Prefix did not match")
	}
	if l.MatchesPrefix("http://example.com/ads.html") {
		t.Fatal("Prefix matched mid-string")
	}
}
