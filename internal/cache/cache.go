// Package cache stores dated JSON snapshots of EDGAR documents on disk, one
// file per CIK per day.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// ErrMiss is returned when no usable snapshot exists.
var ErrMiss = eris.New("cache: miss")

const dateLayout = "20060102"

// Prefixes of the two snapshot families.
const (
	FactsPrefix       = ""
	SubmissionsPrefix = "submissions_"
)

var snapshotName = regexp.MustCompile(`^(.*)CIK(\d{10})_(\d{8})\.json$`)

// Cache is a directory of snapshots named {prefix}CIK{cik10}_{YYYYMMDD}.json.
type Cache struct {
	dir    string
	prefix string
	// MaxAgeDays is how many days old a snapshot may be and still be
	// served. 0 serves only today's snapshot.
	MaxAgeDays int
	// Force bypasses reads; writes still happen.
	Force bool

	now func() time.Time
}

// New creates a cache rooted at dir.
func New(dir, prefix string) *Cache {
	return &Cache{dir: dir, prefix: prefix, now: time.Now}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) today() string {
	return c.now().Format(dateLayout)
}

func (c *Cache) name(cik, date string) string {
	return fmt.Sprintf("%sCIK%s_%s.json", c.prefix, xbrl.PadCIK(cik), date)
}

// snapshots returns the dates of every snapshot for cik, newest first.
func (c *Cache) snapshots(cik string) ([]string, error) {
	pattern := filepath.Join(c.dir, c.name(cik, "*"))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, eris.Wrap(err, "cache: glob")
	}
	var dates []string
	for _, m := range matches {
		parts := snapshotName.FindStringSubmatch(filepath.Base(m))
		if parts == nil || parts[1] != c.prefix {
			continue
		}
		dates = append(dates, parts[3])
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// Find returns the path of the newest fresh snapshot for cik.
func (c *Cache) Find(cik string) (string, error) {
	if c.Force {
		return "", ErrMiss
	}
	dates, err := c.snapshots(cik)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", ErrMiss
	}
	newest, err := time.Parse(dateLayout, dates[0])
	if err != nil {
		return "", ErrMiss
	}
	today, _ := time.Parse(dateLayout, c.today())
	if today.Sub(newest) > time.Duration(c.MaxAgeDays)*24*time.Hour {
		return "", ErrMiss
	}
	return filepath.Join(c.dir, c.name(cik, dates[0])), nil
}

// Load reads the newest fresh snapshot for cik.
func (c *Cache) Load(cik string) ([]byte, error) {
	path, err := c.Find(cik)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	return data, nil
}

// Save writes today's snapshot for cik atomically and prunes older ones.
func (c *Cache) Save(cik string, data []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "cache: create dir")
	}
	path := filepath.Join(c.dir, c.name(cik, c.today()))

	tmp, err := os.CreateTemp(c.dir, ".snapshot-*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "cache: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrap(err, "cache: rename snapshot")
	}

	if _, err := c.Prune(cik); err != nil {
		zap.L().Debug("cache: prune after save failed", zap.String("cik", cik), zap.Error(err))
	}
	return path, nil
}

// Prune removes every snapshot for cik except the newest. It returns the
// number of files removed.
func (c *Cache) Prune(cik string) (int, error) {
	dates, err := c.snapshots(cik)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range dates[min(1, len(dates)):] {
		if err := os.Remove(filepath.Join(c.dir, c.name(cik, d))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, eris.Wrapf(err, "cache: remove %s snapshot %s", cik, d)
		}
		removed++
	}
	return removed, nil
}

// PruneAll prunes every CIK in the directory.
func (c *Cache) PruneAll() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "cache: read dir")
	}

	seen := make(map[string]bool)
	total := 0
	for _, e := range entries {
		parts := snapshotName.FindStringSubmatch(e.Name())
		if parts == nil || parts[1] != c.prefix || seen[parts[2]] {
			continue
		}
		seen[parts[2]] = true
		n, err := c.Prune(parts[2])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
