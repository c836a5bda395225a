// Package backup keeps zstd-compressed copies of save files taken right
// before anchorkeeper rewrites them.
package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"anchorkeeper/internal/logging"

	"github.com/klauspost/compress/zstd"
)

const (
	suffix     = ".zst"
	timeLayout = "20060102T150405.000000000Z"
)

// Snapshotter writes snapshots into Dir and keeps at most Keep per save file.
// Keep <= 0 disables pruning.
type Snapshotter struct {
	Dir  string
	Keep int

	now func() time.Time
}

// Entry is one stored snapshot.
type Entry struct {
	Path    string
	Source  string // base name of the save file
	TakenAt time.Time
}

// New returns a snapshotter writing into dir.
func New(dir string, keep int) *Snapshotter {
	return &Snapshotter{Dir: dir, Keep: keep, now: time.Now}
}

// Snapshot compresses the current contents of path into a new snapshot and
// prunes old ones. It returns the snapshot path.
func (s *Snapshotter) Snapshot(path string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	base := filepath.Base(path)
	name := fmt.Sprintf("%s.%s%s", base, s.now().UTC().Format(timeLayout), suffix)
	dst := filepath.Join(s.Dir, name)

	if err := writeCompressed(dst, src); err != nil {
		os.Remove(dst)
		return "", err
	}
	logging.Backup("Snapshot of %s written to %s", base, dst)

	if s.Keep > 0 {
		if err := s.prune(base); err != nil {
			logging.Get(logging.CategoryBackup).Warn("Pruning snapshots of %s failed: %v", base, err)
		}
	}
	return dst, nil
}

func writeCompressed(dst string, r io.Reader) (retErr error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if _, err := io.Copy(bw, r); err != nil {
		enc.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("compress: %w", err)
	}
	return enc.Close()
}

// List returns the snapshots of the save file named base, newest first.
// An empty base lists every snapshot.
func (s *Snapshotter) List(base string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		e, ok := parseName(de.Name())
		if !ok || (base != "" && e.Source != base) {
			continue
		}
		e.Path = filepath.Join(s.Dir, de.Name())
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	return out, nil
}

// parseName splits "<base>.<timestamp>.zst".
func parseName(name string) (Entry, bool) {
	if !strings.HasSuffix(name, suffix) {
		return Entry{}, false
	}
	rest := strings.TrimSuffix(name, suffix)
	i := strings.LastIndex(rest, ".")
	if i <= 0 {
		return Entry{}, false
	}
	// The timestamp itself contains one '.', so split before it.
	j := strings.LastIndex(rest[:i], ".")
	if j <= 0 {
		return Entry{}, false
	}
	ts, err := time.Parse(timeLayout, rest[j+1:])
	if err != nil {
		return Entry{}, false
	}
	return Entry{Source: rest[:j], TakenAt: ts}, true
}

func (s *Snapshotter) prune(base string) error {
	entries, err := s.List(base)
	if err != nil {
		return err
	}
	for _, e := range entries[min(len(entries), s.Keep):] {
		if err := os.Remove(e.Path); err != nil {
			return err
		}
		logging.Get(logging.CategoryBackup).Debug("Pruned snapshot %s", e.Path)
	}
	return nil
}

// Restore decompresses snapshot into dest, replacing it.
func Restore(snapshot, dest string) error {
	f, err := os.Open(snapshot)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, bufio.NewReaderSize(dec, 256*1024)); err != nil {
		tmp.Close()
		return fmt.Errorf("decompress %s: %w", filepath.Base(snapshot), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	logging.Backup("Restored %s from %s", dest, snapshot)
	return nil
}
