package migration

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// filenameGrammar matches "<digits>-<name>.<up|down>[.no-tx].sql", e.g.
// "20240115120000-add-users-table.up.sql" or
// "20240115120000-backfill-emails.down.no-tx.sql".
var filenameGrammar = regexp.MustCompile(`^(\d+)-(.+)\.(up|down)(\.no-tx)?\.sql$`)

// Discovery walks one or more fs.FS roots (an on-disk directory, an
// embed.FS, a zip archive opened for reading) and builds the Set of
// migrations found there. Malformed filenames are logged and skipped
// rather than treated as a fatal discovery error, since a stray README or
// editor swap file sitting in the migrations directory should not block
// every operator command.
type Discovery struct {
	log     *zap.Logger
	exclude []string
}

// NewDiscovery builds a Discovery. A nil logger is replaced with a no-op
// logger.
func NewDiscovery(log *zap.Logger) *Discovery {
	if log == nil {
		log = zap.NewNop()
	}
	return &Discovery{log: log.With(zap.String("component", "discovery"))}
}

// WithExclude sets filename glob patterns (matched against the base name
// via path.Match) that Scan skips even when they match the migration
// filename grammar. Returns d for chaining.
func (d *Discovery) WithExclude(patterns []string) *Discovery {
	d.exclude = patterns
	return d
}

func (d *Discovery) isExcluded(name string) bool {
	for _, pattern := range d.exclude {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Scan walks root and returns the migrations found in it, keyed by id.
func (d *Discovery) Scan(root fs.FS) (Set, error) {
	set := make(Set)

	if _, err := fs.Stat(root, "."); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, err)
	}

	err := fs.WalkDir(root, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}
		if entry.IsDir() {
			return nil
		}

		name, decodeErr := decodeEntryName(entry.Name())
		if decodeErr != nil {
			d.log.Warn("skipping entry with unparseable name", zap.String("path", p), zap.Error(decodeErr))
			return nil
		}

		if d.isExcluded(name) {
			d.log.Debug("skipping excluded entry", zap.String("path", p))
			return nil
		}

		m := filenameGrammar.FindStringSubmatch(name)
		if m == nil {
			d.log.Warn("skipping entry that does not match migration filename grammar", zap.String("path", p))
			return nil
		}

		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			d.log.Warn("skipping entry with unparseable id", zap.String("path", p), zap.Error(err))
			return nil
		}
		if id == ReservationID || id <= 0 {
			d.log.Warn("skipping entry with reserved or non-positive id", zap.String("path", p), zap.Int64("id", id))
			return nil
		}

		content, err := fs.ReadFile(root, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}

		migrationName := m[2]
		side := m[3]
		noTx := m[4] != ""

		desc, ok := set[id]
		if !ok {
			desc = Descriptor{
				ID:            id,
				Name:          migrationName,
				KindTag:       SQLKindTag,
				Transactional: true,
			}
		}
		if noTx {
			desc.Transactional = false
		}

		switch side {
		case "up":
			desc.UpPayload = sqlPayload{raw: string(content)}
		case "down":
			desc.DownPayload = sqlPayload{raw: string(content)}
		}
		set[id] = desc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return set, nil
}

// ScanZip is a convenience wrapper around Scan for migrations packaged in
// a zip archive, e.g. one shipped alongside a release artifact.
func (d *Discovery) ScanZip(r io.ReaderAt, size int64) (Set, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	return d.Scan(zr)
}

// decodeEntryName normalizes a directory entry's name: zip archives and
// some packaging tools percent-encode characters and use backslashes as a
// path separator on their source platform, neither of which the filename
// grammar expects.
func decodeEntryName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("percent-decode %q: %w", name, err)
	}
	return decoded, nil
}

// slugPattern matches characters not allowed in a migration name slug.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and replaces runs of non-alphanumeric characters
// with a single hyphen, trimming any leading or trailing hyphen.
func Slugify(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// CreateFiles writes an empty up/down pair of migration files into dir
// for name, using the filename grammar Discovery.Scan expects: a UTC
// timestamp id followed by a slugified name. It returns the two paths
// written. The directory is created if it does not already exist.
func CreateFiles(dir, name string, now time.Time) (up, down string, err error) {
	if name == "" {
		return "", "", fmt.Errorf("migration: create requires a non-empty name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create migrations directory: %w", err)
	}

	id := now.UTC().Format("20060102150405")
	slug := Slugify(name)
	if slug == "" {
		return "", "", fmt.Errorf("migration: name %q has no usable characters after slugifying", name)
	}

	up = filepath.Join(dir, fmt.Sprintf("%s-%s.up.sql", id, slug))
	down = filepath.Join(dir, fmt.Sprintf("%s-%s.down.sql", id, slug))

	for _, p := range []string{up, down} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			return "", "", fmt.Errorf("write %s: %w", p, err)
		}
	}
	return up, down, nil
}

// Merge combines multiple sets (e.g. a primary migrations directory and a
// fallback/vendored one) into one, with later sets overriding earlier ones
// on a colliding id.
func Merge(sets ...Set) Set {
	merged := make(Set)
	for _, s := range sets {
		for id, d := range s {
			merged[id] = d
		}
	}
	return merged
}

// Validate checks a discovered set for descriptors missing both an up and
// a down payload, which Discovery should never itself produce but which a
// hand-built Set (tests, code migrations assembled by the application) can
// end up with.
func (s Set) Validate() error {
	var bad []int64
	for id, d := range s {
		if d.UpPayload == nil && d.DownPayload == nil {
			bad = append(bad, id)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return fmt.Errorf("migration: %d descriptor(s) with neither up nor down payload: %v", len(bad), bad)
}
