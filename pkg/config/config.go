// Package config loads the top-level autokernel configuration: a small
// TOML file naming the configuration script and controlling artifact
// installation. The decoded structure is validated twice, structurally
// via struct tags and against an embedded CUE schema.
package config

import (
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// Config is the top-level autokernel configuration.
type Config struct {
	// Config names the configuration script and its installation.
	Config ScriptConfig `toml:"config" json:"config" validate:"required"`

	// Initramfs controls initramfs generation during builds.
	Initramfs InitramfsConfig `toml:"initramfs" json:"initramfs"`

	// Modules controls module installation.
	Modules SectionWithInstall `toml:"modules" json:"modules"`

	// Kernel controls kernel installation.
	Kernel SectionWithInstall `toml:"kernel" json:"kernel"`
}

// ScriptConfig names the configuration script. Only Script is required
// for config generation; installation is an external collaborator.
type ScriptConfig struct {
	// Script is the path to the configuration program (.lua, .star,
	// .txt or .config), relative to the config file.
	Script string `toml:"script" json:"script" validate:"required"`

	// Install controls where the generated .config is copied.
	Install InstallConfig `toml:"install" json:"install"`
}

// InstallConfig is one installation target. Paths may reference
// {KERNEL_VERSION}, substituted at install time.
type InstallConfig struct {
	Enable bool   `toml:"enable" json:"enable"`
	Path   string `toml:"path" json:"path" validate:"required_if=Enable true"`
}

// SectionWithInstall wraps an installation target for a build artifact.
type SectionWithInstall struct {
	Install InstallConfig `toml:"install" json:"install"`
}

// InitramfsConfig controls initramfs generation. The command may
// reference {KERNEL_VERSION}, {INSTALL_MOD_PATH}, {MODULES_DIR} and
// {OUTPUT}.
type InitramfsConfig struct {
	Enable  bool          `toml:"enable" json:"enable"`
	Builtin bool          `toml:"builtin" json:"builtin"`
	Command []string      `toml:"command" json:"command"`
	Install InstallConfig `toml:"install" json:"install"`
}

// Load reads, decodes and validates a TOML configuration file. The
// script path is resolved relative to the config file's directory.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindInvalidValue, "could not read config file", err).
			WithDetail("path", path)
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, kconfig.WrapError(kconfig.KindInvalidValue, "could not parse config file", err).
			WithDetail("path", path)
	}

	if err := Validate(&cfg); err != nil {
		if e, ok := err.(*kconfig.Error); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}

	if !filepath.IsAbs(cfg.Config.Script) {
		cfg.Config.Script = filepath.Join(filepath.Dir(path), cfg.Config.Script)
	}
	return &cfg, nil
}

// Validate checks a configuration structurally and against the CUE
// schema.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "invalid configuration", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema)
	if schema.Err() != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "invalid embedded config schema", schema.Err())
	}
	val := ctx.Encode(cfg)
	if val.Err() != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "could not encode configuration", val.Err())
	}
	if err := schema.Unify(val).Validate(); err != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "configuration violates schema", err)
	}
	return nil
}

// configSchema constrains the decoded configuration beyond what struct
// tags can express.
const configSchema = `
{
	config: {
		script: string & !=""
		install?: #install
	}
	initramfs?: {
		enable?:  bool
		builtin?: bool
		command?: [...string]
		install?: #install
	}
	modules?: install?: #install
	kernel?: install?: #install

	#install: {
		enable?: bool
		path?:   string
	}
}
`
