package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PathToOption turns a filesystem path into a hashpath key. On Windows the
// path is case-folded, uses backslashes, and loses the drive colon, because
// the file format treats ':' as a key/value delimiter.
func PathToOption(path string) string {
	return pathToOption(hostOS, path)
}

// OptionToPath reverses PathToOption.
func OptionToPath(option string) string {
	return optionToPath(hostOS, option)
}

var driveKey = regexp.MustCompile(`^[a-z]\\`)

func pathToOption(goos, path string) string {
	if goos != "windows" {
		return path
	}
	p := strings.ToLower(strings.ReplaceAll(path, "/", `\`))
	if len(p) >= 2 && p[1] == ':' {
		p = p[:1] + p[2:]
	}
	return p
}

func optionToPath(goos, option string) string {
	if goos != "windows" || !driveKey.MatchString(option) {
		return option
	}
	return option[:1] + ":" + option[1:]
}

// Hashpath returns the stored content hash for a path.
func (s *Store) Hashpath(path string) (string, bool) {
	return s.raw(SectionHashpath, PathToOption(path))
}

// SetHashpath remembers the content hash of a path.
func (s *Store) SetHashpath(path, hash string) error {
	return s.Set(SectionHashpath, PathToOption(path), hash)
}

// purgeHashpaths forgets hashes of paths that no longer exist. It runs once,
// before the first write of a session.
func (s *Store) purgeHashpaths() {
	s.purged = true
	sec, err := s.file.GetSection(SectionHashpath)
	if err != nil {
		return
	}
	for _, option := range sec.KeyStrings() {
		path := filepath.FromSlash(OptionToPath(option))
		_, err := os.Lstat(path)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("error checking whether path exists", "path", path, "error", err)
		}
		sec.DeleteKey(option)
	}
}
