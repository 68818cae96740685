package snapshotstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
)

// DefaultWindowDays is how far back an existing snapshot may be reused
// for a request targeting a later virtual date.
const DefaultWindowDays = 30

// Store owns the dated snapshot tree <root>/<year>/<month>/<day>/<relPath>
// plus a SQLite index of which (path, date) snapshots exist. The index
// is rebuilt from a full tree walk at startup and updated on every
// write, so date resolution is a single query instead of a directory
// walk per request.
//
// Store is the only writer of snapshot files; everything else reads.
type Store struct {
	root       string
	windowDays int
	db         *sql.DB
	writeMutex *sync.Mutex
	log        zerolog.Logger
}

// New opens the snapshot index (in-memory if indexFile is empty),
// creates the schema and indexes the existing tree.
func New(root string, windowDays int, indexFile string, logger zerolog.Logger) (*Store, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if indexFile == "" {
		indexFile = ":memory:"
	}
	db, err := sql.Open("sqlite", indexFile)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		rel_path TEXT,
		snapped_on INTEGER,
		PRIMARY KEY (rel_path, snapped_on)
	)`); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	s := &Store{
		root:       root,
		windowDays: windowDays,
		db:         db,
		writeMutex: &sync.Mutex{},
		log:        logger,
	}
	if err := s.Reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reindex rebuilds the snapshot index from the directory tree.
func (s *Store) Reindex() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM snapshots"); err != nil {
		return err
	}
	dates, err := s.listDateDirs()
	if err != nil {
		return err
	}
	files := 0
	for _, date := range dates {
		dir := s.dateDir(date)
		key := dateKey(date)
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if _, err := s.db.Exec(
				"INSERT OR REPLACE INTO snapshots (rel_path, snapped_on) VALUES (?, ?)",
				filepath.ToSlash(rel), key,
			); err != nil {
				return err
			}
			files++
			return nil
		})
		if err != nil {
			return err
		}
	}
	s.log.Debug().Int("files", files).Int("days", len(dates)).Msg("Rebuilt snapshot index")
	return nil
}

// listDateDirs enumerates the syntactically valid <year>/<month>/<day>
// directories under the cache root.
func (s *Store) listDateDirs() ([]time.Time, error) {
	var dates []time.Time
	years, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, y := range years {
		year, err := strconv.Atoi(y.Name())
		if err != nil || !y.IsDir() {
			continue
		}
		months, err := os.ReadDir(filepath.Join(s.root, y.Name()))
		if err != nil {
			continue
		}
		for _, m := range months {
			month, err := strconv.Atoi(m.Name())
			if err != nil || !m.IsDir() {
				continue
			}
			days, err := os.ReadDir(filepath.Join(s.root, y.Name(), m.Name()))
			if err != nil {
				continue
			}
			for _, d := range days {
				day, err := strconv.Atoi(d.Name())
				if err != nil || !d.IsDir() {
					continue
				}
				dates = append(dates, time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local))
			}
		}
	}
	return dates, nil
}

// ResolveDate picks the snapshot date that should satisfy a request for
// relPath targeting target. The most recent snapshot strictly inside
// (target - window, target) wins; failing that, target itself is
// returned and the miss is left for the fetch pipeline to fill.
// Both bounds are strict: a snapshot dated exactly target or exactly
// target minus the window does not count as a recent hit.
func (s *Store) ResolveDate(relPath string, target time.Time) time.Time {
	lower := dateKey(target.AddDate(0, 0, -s.windowDays))
	upper := dateKey(target)
	var best sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(snapped_on) FROM snapshots WHERE rel_path = ? AND snapped_on > ? AND snapped_on < ?",
		relPath, lower, upper,
	).Scan(&best)
	if err != nil || !best.Valid {
		return target
	}
	date := keyDate(int(best.Int64))
	// the index can go stale if files are removed out of band
	if !s.Has(date, relPath) {
		return target
	}
	s.log.Debug().Str("path", relPath).Time("snapshot", date).Msg("Found recent cached snapshot")
	return date
}

// FilePath returns the on-disk path of relPath under the dated directory.
func (s *Store) FilePath(date time.Time, relPath string) string {
	return filepath.Join(s.dateDir(date), filepath.FromSlash(relPath))
}

// Has checks whether the snapshot file exists on disk.
func (s *Store) Has(date time.Time, relPath string) bool {
	info, err := os.Stat(s.FilePath(date, relPath))
	return err == nil && !info.IsDir()
}

// Read returns the snapshot bytes.
func (s *Store) Read(date time.Time, relPath string) ([]byte, error) {
	return os.ReadFile(s.FilePath(date, relPath))
}

// Write persists one snapshot, creating the directory as needed, and
// records it in the index.
func (s *Store) Write(date time.Time, relPath string, data []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	full := s.FilePath(date, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (rel_path, snapped_on) VALUES (?, ?)",
		relPath, dateKey(date),
	)
	return err
}

// dateDir uses unpadded month and day names, the layout the tree has
// always had on disk.
func (s *Store) dateDir(date time.Time) string {
	return filepath.Join(s.root,
		strconv.Itoa(date.Year()),
		strconv.Itoa(int(date.Month())),
		strconv.Itoa(date.Day()))
}

// dateKey encodes a date as YYYYMMDD, which orders like the date itself.
func dateKey(date time.Time) int {
	return date.Year()*10000 + int(date.Month())*100 + date.Day()
}

func keyDate(key int) time.Time {
	return time.Date(key/10000, time.Month(key/100%100), key%100, 0, 0, 0, 0, time.Local)
}
