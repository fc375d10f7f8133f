package migcheck

import (
	"github.com/loykin/migcheck/internal/checks"
	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/fixture"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/runner"
	"github.com/loykin/migcheck/internal/schema"
)

// Re-export commonly used types for the public API

// Revision sentinels.
const (
	Base  = history.Base
	Heads = history.Heads
	Head  = history.Head
)

type (
	Runner          = runner.Runner
	DowngradeResult = runner.DowngradeResult
	Warning         = runner.Warning

	Revision = history.Revision
	Graph    = history.Graph

	Row          = fixture.Row
	FixtureSpec  = fixture.Spec
	FixtureIndex = fixture.Index

	GenerateOptions = engine.GenerateOptions
	GenerateResult  = engine.GenerateResult
	Draft           = engine.Draft
	Directive       = engine.Directive
	Action          = engine.Action

	Model       = schema.Model
	Failure     = checks.Failure
	CheckResult = checks.Result

	Logger   = common.Logger
	LogLevel = common.LogLevel
)

// Error types.
type (
	UnknownRevisionError  = history.UnknownRevisionError
	GraphError            = history.GraphError
	MissingTableNameError = schema.MissingTableNameError
	UnknownColumnError    = schema.UnknownColumnError
	TableNotFoundError    = schema.TableNotFoundError
	EngineExecutionError  = runner.EngineExecutionError
)

var (
	ErrDowngradeNotImplemented = engine.ErrDowngradeNotImplemented
	ErrBoundary                = runner.ErrBoundary
	ErrGenerateUnsupported     = runner.ErrGenerateUnsupported
)

// Generation outcomes and directive actions.
const (
	StatusGenerated  = engine.StatusGenerated
	StatusSuppressed = engine.StatusSuppressed
	StatusFailed     = engine.StatusFailed

	ActionWrite    = engine.ActionWrite
	ActionSuppress = engine.ActionSuppress
)

// Log levels.
const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// NewFixtureIndex builds fixture data from before/at specs.
func NewFixtureIndex(before, at FixtureSpec) *FixtureIndex { return fixture.NewIndex(before, at) }

// ParseFixtureSpec normalizes loosely typed fixture data.
func ParseFixtureSpec(raw any) (FixtureSpec, error) { return fixture.ParseSpec(raw) }

// LoadFixtureFile reads a before/at YAML fixture document.
func LoadFixtureFile(path string) (*FixtureIndex, error) { return fixture.LoadFile(path) }

// CheckNames lists the default checks.
func CheckNames() []string { return checks.Default() }

// SetDefaultLogger replaces the global logger.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// GetLogger returns the global logger.
func GetLogger() *Logger { return common.GetLogger() }
