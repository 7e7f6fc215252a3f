package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/wardenmcp/warden/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag, the
// WARDEN_DATA_DIR env var, or ~/.warden as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("WARDEN_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".warden")
}

// openConfigStore opens the SQLite config store under the data directory.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// loadConfig loads the YAML policy configuration from --config, the viper
// search path, or returns the defaults when no file exists.
func loadConfig() (*config.YAMLConfig, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		if _, err := os.Stat("warden.yaml"); err == nil {
			path = "warden.yaml"
		}
	}
	if path == "" {
		return config.DefaultYAMLConfig(), nil
	}
	return config.LoadYAMLConfig(path)
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "warden.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "warden.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
