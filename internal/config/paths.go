package config

import (
	"os"
	"path/filepath"
)

const fileName = "purgekit.ini"

// DefaultPath returns the preferences file location. PURGEKIT_CONFIG_DIR
// overrides the platform directory, which is how portable installs keep the
// file next to the binary.
func DefaultPath() string {
	if dir := os.Getenv("PURGEKIT_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, fileName)
	}
	return filepath.Join(defaultConfigDir(), fileName)
}

// DefaultDataDir returns the directory for task history and other state.
func DefaultDataDir() string {
	return defaultDataDir()
}

// defaultShredDrives guesses where free-space overwriting is useful: the
// home directory and the temp directory when they differ.
func defaultShredDrives() []string {
	var drives []string
	if home, err := os.UserHomeDir(); err == nil {
		drives = append(drives, home)
	}
	tmp := os.TempDir()
	for _, d := range drives {
		if d == tmp {
			return drives
		}
	}
	return append(drives, tmp)
}

// userLocale reads the message locale from the environment, e.g. "de_DE"
// from LANG=de_DE.UTF-8.
func userLocale() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(env)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		for i, r := range v {
			if r == '.' || r == '@' {
				return v[:i]
			}
		}
		return v
	}
	return "en"
}
