package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories when no app name is given.
const DefaultAppName = "waypoint"

// ErrInvalidAppName reports an app name that cannot be used as a directory name.
var ErrInvalidAppName = errors.New("invalid app name")

// Paths lists the per-user locations waypoint reads and writes.
type Paths struct {
	ConfigPath   string
	DataDir      string
	DBPath       string
	SnapshotPath string
}

// Options selects the app name, dev-mode suffix and an optional home root.
// A non-empty Home replaces both OS base dirs, so config and data live under Home/<app>.
type Options struct {
	AppName string
	DevMode bool
	Home    string
}

// baseDirEnv names the variables that override the config and data bases per OS.
var baseDirEnv = map[string][2]string{
	"linux":   {"XDG_CONFIG_HOME", "XDG_DATA_HOME"},
	"windows": {"APPDATA", "LOCALAPPDATA"},
}

// DefaultPaths resolves paths for the default app name.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves paths from opts.Home or the OS user dirs.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName, err := appDirName(opts.AppName, opts.DevMode)
	if err != nil {
		return Paths{}, err
	}
	if home := strings.TrimSpace(opts.Home); home != "" {
		return layout(home, home, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	env := make(map[string]string, 2)
	for _, name := range baseDirEnv[runtime.GOOS] {
		env[name] = os.Getenv(name)
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves paths for one OS and environment without touching the filesystem.
// appName is used as given; dev-mode suffixing happens in DefaultPathsWithOptions.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName, err := appDirName(appName, false)
	if err != nil {
		return Paths{}, err
	}
	configBase, dataBase := userConfigDir, userDataDir
	if names, ok := baseDirEnv[goos]; ok {
		if v := strings.TrimSpace(env[names[0]]); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(env[names[1]]); v != "" {
			dataBase = v
		}
	}
	return layout(configBase, dataBase, appName), nil
}

// appDirName trims and validates the app name, appending "-dev" in dev mode.
func appDirName(name string, dev bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultAppName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAppName, name)
	}
	if dev {
		name += "-dev"
	}
	return name, nil
}

func layout(configBase, dataBase, appName string) Paths {
	dataDir := filepath.Join(dataBase, appName)
	return Paths{
		ConfigPath:   filepath.Join(configBase, appName, "config.toml"),
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, appName+".db"),
		SnapshotPath: filepath.Join(dataDir, appName+"-snapshot.yaml"),
	}
}
