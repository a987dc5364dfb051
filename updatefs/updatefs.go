// Package updatefs deploys a new version of a server's files over an
// installed tree while keeping local changes.
//
// Update compares three trees: old (the version the target was built
// from), new (the version to deploy) and target (the live directory). Files
// are symlinked into the target by default; directories matching a Copy
// pattern have their files copied instead so they can be edited in place.
// Local edits are never overwritten. Conflicting versions are left next to
// the live file with a .~new, .~old or .~local suffix.
package updatefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/google/renameio/v2"
)

// Sidecar suffixes. Entries carrying one are never touched.
const (
	SuffixOld   = ".~old"
	SuffixNew   = ".~new"
	SuffixLocal = ".~local"
)

// Options controls how new entries are deployed. Patterns are matched
// against slash-separated paths relative to the tree root; directories are
// matched with a trailing slash ("config/").
type Options struct {
	// LinkDir lists directories symlinked as a whole instead of recursed into
	LinkDir []*regexp.Regexp
	// Copy lists files, or directories whose contents, are copied rather
	// than symlinked
	Copy []*regexp.Regexp
	// Logger receives conflict warnings
	Logger *slog.Logger
}

// Report lists what Update did, as paths relative to the target
type Report struct {
	Linked   []string
	Copied   []string
	Removed  []string
	Kept     []string
	Sidecars []string
}

// Compile turns patterns into expressions anchored at the start of the path
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

type updater struct {
	opts   Options
	log    *slog.Logger
	report Report
}

// Update merges newDir into target using oldDir as the common base. oldDir
// may be empty or missing for a first install.
func Update(oldDir, newDir, target string, opts Options) (*Report, error) {
	newAbs, err := filepath.Abs(newDir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(newAbs); err != nil {
		return nil, fmt.Errorf("reading new tree: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("new tree %s is not a directory", newDir)
	}
	u := &updater{opts: opts, log: opts.Logger}
	if u.log == nil {
		u.log = slog.Default()
	}
	if err := u.updateDir(oldDir, newAbs, target, "", false); err != nil {
		return &u.report, err
	}
	return &u.report, nil
}

func (u *updater) updateDir(oldDir, newDir, target, rel string, force bool) error {
	if !force && rel != "" && matchAny(u.opts.Copy, rel+"/") {
		force = true
	}

	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	newEntries, err := names(newDir)
	if err != nil {
		return err
	}
	targetEntries, err := names(target)
	if err != nil {
		return err
	}

	for _, entry := range targetEntries {
		if isSidecar(entry) || slices.Contains(newEntries, entry) {
			continue
		}
		oldEntry := oldJoin(oldDir, entry)
		if !exists(oldEntry) {
			// not from the old version, assume the game created it
			continue
		}
		if err := u.retire(filepath.Join(target, entry), oldEntry, join(rel, entry)); err != nil {
			return err
		}
	}

	for _, entry := range newEntries {
		relEntry := join(rel, entry)
		newEntry := filepath.Join(newDir, entry)
		oldEntry := oldJoin(oldDir, entry)
		targetEntry := filepath.Join(target, entry)

		info, err := os.Stat(newEntry)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir() && (force || !matchAny(u.opts.LinkDir, relEntry+"/")):
			if err := u.updateDir(oldEntry, newEntry, targetEntry, relEntry, force); err != nil {
				return err
			}
		case !info.IsDir() && (force || matchAny(u.opts.Copy, relEntry)):
			if err := u.copyEntry(oldEntry, newEntry, targetEntry, relEntry, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			if err := u.linkEntry(newEntry, targetEntry, relEntry); err != nil {
				return err
			}
		}
	}
	return nil
}

// retire removes an entry the new version dropped, unless it was changed
// locally
func (u *updater) retire(targetEntry, oldEntry, rel string) error {
	info, err := os.Lstat(targetEntry)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return u.clearTree(targetEntry, oldEntry, rel)
	}
	if info.Mode()&fs.ModeSymlink != 0 || sameContent(targetEntry, oldEntry) {
		if err := os.Remove(targetEntry); err != nil {
			return err
		}
		u.report.Removed = append(u.report.Removed, rel)
		return nil
	}
	if err := replace(targetEntry, targetEntry+SuffixLocal); err != nil {
		return err
	}
	u.report.Kept = append(u.report.Kept, rel+SuffixLocal)
	u.log.Warn("file from the old version was changed locally but is not in the new version",
		"path", targetEntry, "saved", targetEntry+SuffixLocal)
	return nil
}

// clearTree retires every entry of a directory that came from the old
// version and removes the directory once it is empty
func (u *updater) clearTree(target, oldDir, rel string) error {
	entries, err := names(target)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		oldEntry := oldJoin(oldDir, entry)
		if isSidecar(entry) || !exists(oldEntry) {
			continue
		}
		if err := u.retire(filepath.Join(target, entry), oldEntry, join(rel, entry)); err != nil {
			return err
		}
	}
	if left, err := names(target); err == nil && len(left) == 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
		u.report.Removed = append(u.report.Removed, rel+"/")
	}
	return nil
}

func (u *updater) copyEntry(oldEntry, newEntry, targetEntry, rel string, perm fs.FileMode) error {
	if !lexists(targetEntry) {
		if err := copyFile(newEntry, targetEntry, perm); err != nil {
			return err
		}
		u.report.Copied = append(u.report.Copied, rel)
		return nil
	}

	switch {
	case exists(oldEntry) && sameContent(targetEntry, oldEntry):
		if err := os.Remove(targetEntry); err != nil {
			return err
		}
		if err := copyFile(newEntry, targetEntry, perm); err != nil {
			return err
		}
		u.report.Copied = append(u.report.Copied, rel)
	case !exists(oldEntry):
		if err := copyFile(newEntry, targetEntry+SuffixNew, perm); err != nil {
			return err
		}
		u.report.Sidecars = append(u.report.Sidecars, rel+SuffixNew)
		u.log.Warn("file is in the new version and locally but not in the old version, keeping the local copy",
			"path", targetEntry, "new", targetEntry+SuffixNew)
	case !sameContent(newEntry, oldEntry):
		if err := copyFile(newEntry, targetEntry+SuffixNew, perm); err != nil {
			return err
		}
		if err := copyFile(oldEntry, targetEntry+SuffixOld, perm); err != nil {
			return err
		}
		u.report.Sidecars = append(u.report.Sidecars, rel+SuffixNew, rel+SuffixOld)
		u.log.Warn("file was updated but has local changes, keeping the local copy",
			"path", targetEntry, "new", targetEntry+SuffixNew, "old", targetEntry+SuffixOld)
	}
	return nil
}

func (u *updater) linkEntry(newEntry, targetEntry, rel string) error {
	if info, err := os.Lstat(targetEntry); err == nil {
		if info.Mode()&fs.ModeSymlink != 0 {
			if err := os.Remove(targetEntry); err != nil {
				return err
			}
		} else {
			if err := replace(targetEntry, targetEntry+SuffixLocal); err != nil {
				return err
			}
			u.report.Kept = append(u.report.Kept, rel+SuffixLocal)
			u.log.Warn("local entry replaced by a link to the new version",
				"path", targetEntry, "saved", targetEntry+SuffixLocal)
		}
	}
	if err := os.Symlink(newEntry, targetEntry); err != nil {
		return fmt.Errorf("linking %s: %w", rel, err)
	}
	u.report.Linked = append(u.report.Linked, rel)
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if info, err := os.Lstat(dst); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	defer out.Cleanup()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.CloseAtomicallyReplace()
}

// replace renames from to to, dropping whatever to held
func replace(from, to string) error {
	if err := os.RemoveAll(to); err != nil {
		return err
	}
	return os.Rename(from, to)
}

func sameContent(a, b string) bool {
	fa, err := os.Open(a)
	if err != nil {
		return false
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false
	}
	defer fb.Close()

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if doneA || doneB {
			return doneA && doneB
		}
		if errA != nil || errB != nil {
			return false
		}
	}
}

func names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out, nil
}

func isSidecar(name string) bool {
	return strings.HasSuffix(name, SuffixOld) || strings.HasSuffix(name, SuffixNew) || strings.HasSuffix(name, SuffixLocal)
}

func matchAny(patterns []*regexp.Regexp, path string) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func join(rel, entry string) string {
	if rel == "" {
		return entry
	}
	return rel + "/" + entry
}

// oldJoin keeps a missing base tree missing all the way down
func oldJoin(dir, entry string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, entry)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func lexists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
