package migcheck

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/store"
	"github.com/loykin/migcheck/internal/util"
)

// EngineConfig selects the migration engine and where its revisions live.
type EngineConfig struct {
	// Type is sqlfile (default) or golang-migrate.
	Type string `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlfile golang-migrate"`
	Dir  string `mapstructure:"dir" yaml:"dir" validate:"required"`
	// VersionTable overrides the engine's bookkeeping table name.
	VersionTable       string `mapstructure:"version_table" yaml:"version_table"`
	VersionTableSchema string `mapstructure:"version_table_schema" yaml:"version_table_schema"`
}

// SessionConfig controls the connection scope of each operation.
type SessionConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=tx conn pool"`
}

// DataConfig carries fixture rows, either inline or from a file.
type DataConfig struct {
	File   string         `mapstructure:"file" yaml:"file"`
	Before map[string]any `mapstructure:"before" yaml:"before"`
	At     map[string]any `mapstructure:"at" yaml:"at"`
}

// ChecksConfig configures the check command.
type ChecksConfig struct {
	// Run lists check names; empty runs the default set.
	Run []string `mapstructure:"run" yaml:"run"`
	// Model is a YAML file declaring the expected tables and columns.
	Model  string `mapstructure:"model" yaml:"model"`
	Schema string `mapstructure:"schema" yaml:"schema"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=error warn warning info debug"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json color"`
}

// Config is the full migcheck configuration.
type Config struct {
	Database                 store.Config  `mapstructure:"database" yaml:"database"`
	Engine                   EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Session                  SessionConfig `mapstructure:"session" yaml:"session"`
	Data                     DataConfig    `mapstructure:"data" yaml:"data"`
	SkipRevisions            []string      `mapstructure:"skip_revisions" yaml:"skip_revisions"`
	MinimumDowngradeRevision string        `mapstructure:"minimum_downgrade_revision" yaml:"minimum_downgrade_revision"`
	Checks                   ChecksConfig  `mapstructure:"checks" yaml:"checks"`
	Logging                  LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the combinations tags cannot express.
func (c *Config) Validate() error {
	var result *multierror.Error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := fe.StructNamespace()
			field = field[strings.Index(field, ".")+1:]
			result = multierror.Append(result, fmt.Errorf("%s: failing to pass validation: '%s'", field, fe.Tag()))
		}
	}
	if c.Data.File != "" && (len(c.Data.Before) > 0 || len(c.Data.At) > 0) {
		result = multierror.Append(result, fmt.Errorf("data: file and inline before/at are mutually exclusive"))
	}
	if _, err := store.NormalizeDriver(c.Database.Driver); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// EngineType returns the configured engine, defaulting to sqlfile.
func (c *Config) EngineType() string {
	return util.TrimWithDefault(util.TrimAndLower(c.Engine.Type), constants.EngineSQLFile)
}

// Decode fills a Config from a generic map, as produced by viper or a YAML
// decoder.
func Decode(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// SetupLogging installs the global logger described by cfg, writing to w.
func SetupLogging(w io.Writer, cfg LoggingConfig) *common.Logger {
	logger := common.NewLoggerWithFormat(w, common.ParseLogLevel(cfg.Level), util.TrimWithDefault(cfg.Format, common.FormatText))
	common.SetDefaultLogger(logger)
	return logger
}
