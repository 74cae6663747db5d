package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "CHATLINE_HOME"

// Layout under BaseDir:
//
//	config.toml
//	relay.db
//	sessions/<name>/{LOCK,daemon.sock,chatline.db,device.db,logs/chatd.log}

// BaseDir returns $CHATLINE_HOME, or ~/.chatline.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatline")
}

func sessionsDir() string { return filepath.Join(BaseDir(), "sessions") }

// Dir returns the session-specific directory.
func Dir(name string) string { return filepath.Join(sessionsDir(), name) }

// SocketPath is where chatd serves its API.
func SocketPath(name string) string { return filepath.Join(Dir(name), "daemon.sock") }

// LockPath is the single-daemon lock file.
func LockPath(name string) string { return filepath.Join(Dir(name), "LOCK") }

// DevicePath is the whatsmeow device store of a session.
func DevicePath(name string) string { return filepath.Join(Dir(name), "device.db") }

// AppDBPath is the contact directory and message journal of a session.
func AppDBPath(name string) string { return filepath.Join(Dir(name), "chatline.db") }

// LogDir returns the log directory for a session.
func LogDir(name string) string { return filepath.Join(Dir(name), "logs") }

// LogPath returns the daemon log file path.
func LogPath(name string) string { return filepath.Join(LogDir(name), "chatd.log") }

// ConfigPath returns the global config file path.
func ConfigPath() string { return filepath.Join(BaseDir(), "config.toml") }

// RelayDBPath is chatrelay's default history database.
func RelayDBPath() string { return filepath.Join(BaseDir(), "relay.db") }

// EnsureDir creates the session tree private to the current user.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
		// MkdirAll leaves existing directories alone.
		if err := os.Chmod(d, 0700); err != nil {
			return fmt.Errorf("secure %s: %w", d, err)
		}
	}
	return nil
}

// List returns the names of existing sessions, sorted.
func List() ([]string, error) {
	entries, err := os.ReadDir(sessionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
