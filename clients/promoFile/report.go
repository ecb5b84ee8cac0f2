package promofile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockName  = ".promo-report.lock"
	reportExt = ".txt"
	// maxCollisions bounds the numbered retries for a taken {tag}_{unix} name.
	maxCollisions = 100
)

// reportName matches {tag}_{unix}.txt and {tag}_{unix}_{n}.txt.
var reportName = regexp.MustCompile(`^[A-Za-z0-9_-]+_\d+(_\d+)?\.txt$`)

var ErrNoWritableDir = errors.New("promofile: no writable report directory")

// Writer stores campaign reports in the first usable directory of its candidates.
type Writer struct {
	dirs []string
	now  func() time.Time

	mu       sync.Mutex
	resolved string
}

func New(preferred string, fallbacks ...string) *Writer {
	w := &Writer{now: time.Now}
	seen := make(map[string]bool)
	for _, dir := range append([]string{preferred}, fallbacks...) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		clean := filepath.Clean(dir)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		w.dirs = append(w.dirs, clean)
	}
	return w
}

// DefaultFallbacks lists the directories tried after the configured one.
func DefaultFallbacks() []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(cwd, "temp_files"))
	}
	dirs = append(dirs, filepath.Join(os.TempDir(), "promo_files"))
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "promo_files"))
	}
	return append(dirs, filepath.Join(".", "subscription_files"))
}

// Dir returns the directory the last report went to, or "" before the first one.
func (w *Writer) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resolved
}

// WriteReport writes links one per line to {tag}_{unix}.txt and returns the file path.
func (w *Writer) WriteReport(tag string, links []string) (string, error) {
	if tag == "" || strings.ContainsAny(tag, `/\`) || tag == "." || tag == ".." {
		return "", fmt.Errorf("promofile: invalid tag %q", tag)
	}

	var content strings.Builder
	for _, link := range links {
		content.WriteString(link)
		content.WriteByte('\n')
	}

	var errs []error
	for _, dir := range w.dirs {
		path, err := w.writeIn(dir, tag, content.String())
		if err == nil {
			w.mu.Lock()
			w.resolved = dir
			w.mu.Unlock()
			return path, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", dir, err))
	}
	return "", errors.Join(append([]error{ErrNoWritableDir}, errs...)...)
}

func (w *Writer) writeIn(dir, tag, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	lock := flock.New(filepath.Join(dir, lockName))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock: %w", err)
	}
	defer lock.Unlock()

	f, path, err := createUnique(dir, tag, w.now().Unix())
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close: %w", err)
	}
	return path, nil
}

func createUnique(dir, tag string, unix int64) (*os.File, string, error) {
	base := tag + "_" + strconv.FormatInt(unix, 10)
	for n := 0; n <= maxCollisions; n++ {
		name := base + reportExt
		if n > 0 {
			name = base + "_" + strconv.Itoa(n) + reportExt
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("%s: too many reports with the same name", base)
}

// Cleanup removes reports older than maxAge from every candidate directory that exists.
func (w *Writer) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := w.now().Add(-maxAge)

	removed := 0
	var errs []error
	for _, dir := range w.dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !reportName.MatchString(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}
