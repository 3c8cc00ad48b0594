package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadUser reads the machine-local configuration beside the project file.
// The file is optional; every setting but defaultRelease has a default,
// and every setting can be overridden
// through DBBM_* environment variables (DBBM_CONNECTION,
// DBBM_CACHE_ROOTPATH, ...), which is how CI injects its server.
func LoadUser(root string) (User, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, UserFileName))
	v.SetConfigType("json")

	v.SetEnvPrefix("DBBM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backupDir", filepath.Join(root, "backups"))
	v.SetDefault("backupPattern", defaultBackupPattern)
	v.SetDefault("environment", "dev")
	v.SetDefault("connection", "localhost")
	v.SetDefault("cache.rootPath", "")
	v.SetDefault("cache.maxCacheSize", -1)
	v.SetDefault("cache.autoGC", true)
	v.SetDefault("cache.minDeployTime", "10s")
	v.SetDefault("cache.compress", true)
	v.SetDefault("beeps", map[string]string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return User{}, &ParseError{Path: v.ConfigFileUsed(), Err: err}
		}
	}

	var u User
	if err := v.Unmarshal(&u); err != nil {
		return User{}, &ParseError{Path: v.ConfigFileUsed(), Err: err}
	}
	return u, nil
}

// defaultBackupPattern matches names like AdventureWorks.R12.dev.bak.
// Files without the env segment count as environment-agnostic.
const defaultBackupPattern = `^(?P<dbName>[^.]+)\.(?P<release>[^.]+)(?:\.(?P<env>[^.]+))?\.bak$`
