// Package config defines the compile-time configuration consumed by the
// code generator: the target Z-machine version, the text encoder and
// string/action/abbreviation tables owned by external collaborators, and
// the warning-suppression policy.
package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// StringEncoder encodes ZIL text into packed ZSCII words. It is
// version-aware and owned by the external text/dictionary builder; the
// code generator only calls it for inline TELL/PRINT string operands.
type StringEncoder interface {
	// EncodeString returns the ZSCII-packed bytes for s, including the
	// high-bit terminator on the final word.
	EncodeString(s string) ([]byte, error)
}

// StringTableBuilder interns string literals encountered outside of TELL's
// inline dispatch (e.g. table (STRING) entries), so the assembler can later
// place them in the string region alongside abbreviation candidates.
type StringTableBuilder interface {
	Intern(s string) (index int)
}

// ActionTable holds the verb constants and the action-name to routine-name
// map built by the external parser/grammar compiler; V-ROOM-style action
// dispatch tables consult this at the assembler stage, but the code
// generator needs VerbConstants to resolve bare-atom operands that name a
// verb (see codegen's operand classifier fallback chain).
type ActionTable struct {
	VerbConstants map[string]int
	Actions       map[string]string
}

// Config is the full set of compile-time knobs the code generator consults.
// YAML tags let a story's build pipeline check in a config file; env tags
// let CI override the same fields without editing it (see Load/LoadEnv).
type Config struct {
	// Version is the target Z-machine version, 1..8.
	Version int `yaml:"version" env:"ZIL_VERSION"`

	// SuppressAllWarnings silences every diagnostic below Error severity.
	SuppressAllWarnings bool `yaml:"suppress_all_warnings" env:"ZIL_SUPPRESS_ALL_WARNINGS"`
	// SuppressedWarnings is a set of code prefixes (e.g. "ZIL02") matched
	// against the start of each diagnostic code.
	SuppressedWarnings []string `yaml:"suppressed_warnings"`
	// WarnAsError promotes the first raised warning to a fatal error.
	WarnAsError bool `yaml:"warn_as_error" env:"ZIL_WARN_AS_ERROR"`

	// CRLFCharacter is the ZSCII code TELL treats as a forced newline in
	// addition to the literal CR atom. Zero means "use the version default".
	CRLFCharacter byte `yaml:"crlf_character"`
	// PreserveSpaces disables the text encoder's whitespace normalization.
	PreserveSpaces bool `yaml:"preserve_spaces"`
	// DoFunnyReturn overrides the per-version default for untargeted
	// RETURN: nil means "use the version default" (V>=5 routine-exits,
	// V<=4 block-exits); non-nil pins the behavior regardless of version.
	DoFunnyReturn *bool `yaml:"do_funny_return"`

	// Actions is the action/verb table; may be nil if the story has none
	// defined yet (tests routinely omit it).
	Actions *ActionTable `yaml:"-"`
	// Abbreviations is the optional list of pre-computed abbreviation
	// strings; nil disables abbreviation substitution entirely.
	Abbreviations []string `yaml:"abbreviations"`

	// Encoder and Strings are owned by external collaborators and are
	// never (de)serialized; callers wire them in after Load/LoadEnv.
	Encoder StringEncoder     `yaml:"-"`
	Strings StringTableBuilder `yaml:"-"`
}

// Default returns a Config with the documented per-field defaults applied
// (version 3, no suppressions, funny-return left at its version default).
func Default() *Config {
	return &Config{Version: 3}
}

// Load reads a YAML config file at path and overlays it on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv applies ZIL_-prefixed environment variable overrides onto cfg,
// in place. It is typically called after Load so CI can override a handful
// of fields (version, warn-as-error) without touching the checked-in file.
func LoadEnv(cfg *Config) error {
	return env.Parse(cfg)
}

// FunnyReturn reports whether untargeted RETURN should exit the enclosing
// routine (true) rather than the innermost block (false), resolving the
// DoFunnyReturn override against the per-version default.
func (c *Config) FunnyReturn() bool {
	if c.DoFunnyReturn != nil {
		return *c.DoFunnyReturn
	}
	return c.Version >= 5
}

// Alignment returns the byte alignment routines must be placed at for this
// config's version: 2 for V<=3, 4 for V<=7, 8 for V8.
func (c *Config) Alignment() int {
	switch {
	case c.Version <= 3:
		return 2
	case c.Version <= 7:
		return 4
	default:
		return 8
	}
}

// MaxRequiredParams returns the maximum number of required routine
// parameters allowed for this config's version (3 for V<=3, 7 otherwise).
func (c *Config) MaxRequiredParams() int {
	if c.Version <= 3 {
		return 3
	}
	return 7
}

// IsSuppressed reports whether a diagnostic with the given code should be
// dropped under this config's suppression policy.
func (c *Config) IsSuppressed(code string) bool {
	if c.SuppressAllWarnings {
		return true
	}
	for _, prefix := range c.SuppressedWarnings {
		if prefix != "" && len(code) >= len(prefix) && code[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
