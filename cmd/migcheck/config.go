package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/migcheck"
	"github.com/spf13/viper"
)

// loadConfig reads the config file at path. MIGCHECK_* environment variables
// override keys present in the file, e.g. MIGCHECK_DATABASE_POSTGRES_PASSWORD.
// Relative engine, data and model paths resolve against the file's directory.
// Keys are case-insensitive; use data.file for fixture columns with upper case.
func loadConfig(path string) (migcheck.Config, error) {
	if strings.TrimSpace(path) == "" {
		return migcheck.Config{}, fmt.Errorf("no config file given; use --config or MIGCHECK_CONFIG")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return migcheck.Config{}, err
	}
	if !fi.Mode().IsRegular() {
		return migcheck.Config{}, fmt.Errorf("config path is not a regular file: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MIGCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return migcheck.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := migcheck.Decode(v.AllSettings())
	if err != nil {
		return migcheck.Config{}, err
	}
	base := filepath.Dir(path)
	cfg.Engine.Dir = resolvePath(base, cfg.Engine.Dir)
	cfg.Data.File = resolvePath(base, cfg.Data.File)
	cfg.Checks.Model = resolvePath(base, cfg.Checks.Model)
	if cfg.Database.SQLite.Path != "" && cfg.Database.SQLite.Path != ":memory:" {
		cfg.Database.SQLite.Path = resolvePath(base, cfg.Database.SQLite.Path)
	}
	return cfg, nil
}

func resolvePath(base, p string) string {
	if strings.TrimSpace(p) == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// openHandle loads the config named by --config, installs its logger and
// opens a handle.
func openHandle(ctx context.Context) (*migcheck.Handle, error) {
	cfg, err := loadConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	migcheck.SetupLogging(os.Stderr, cfg.Logging)
	return migcheck.Open(ctx, cfg)
}
