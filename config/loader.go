package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/tsengine/logger"
)

// FileSystem is the file access the loader needs. Tests substitute it.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem reads the real file system.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (OSFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

// searchDirs are tried in order, so commands find their files whether they
// run from the module root, a package directory or the command directory.
var searchDirs = []string{".", "..", filepath.Join("..", "..")}

// Files names the configuration and .env files a load reads. Empty means
// none was found.
type Files struct {
	Config string
	Env    string
}

// Resolve returns explicit paths when set and otherwise searches for
// cmd/<service>/config.yml, config/config.yml and config.yml, then for
// .env.<service> and .env next to them.
func Resolve(fsys FileSystem, serviceName string, explicit Files) Files {
	files := explicit
	if files.Config == "" {
		files.Config = firstExisting(fsys, searchDirs,
			filepath.Join("cmd", serviceName, "config.yml"),
			filepath.Join("config", "config.yml"),
			"config.yml",
		)
	}
	if files.Env == "" {
		files.Env = firstExisting(fsys, searchDirs,
			filepath.Join("cmd", serviceName, ".env"),
			".env."+serviceName,
			".env",
		)
	}
	return files
}

func firstExisting(fsys FileSystem, dirs []string, names ...string) string {
	for _, name := range names {
		for _, dir := range dirs {
			if p := filepath.Join(dir, name); fsys.Exists(p) {
				return p
			}
		}
	}
	return ""
}

type loaderOptions struct {
	fs    FileSystem
	files Files
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*loaderOptions)

// WithFileSystem replaces the OS file system.
func WithFileSystem(fsys FileSystem) LoaderOption {
	return func(o *loaderOptions) { o.fs = fsys }
}

// WithConfigFile reads path instead of searching for config.yml.
func WithConfigFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.files.Config = path }
}

// WithEnvFile loads path instead of searching for a .env file.
func WithEnvFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.files.Env = path }
}

// LoadConfig reads the configuration for serviceName into cfg, a pointer to
// a struct. Values come from the YAML file, overridden by environment
// variables. The .env file, when present, is loaded into the environment
// first.
//
// Every mapstructure key of cfg can be set from the environment, with dots
// turned into underscores: server.port reads SERVER_PORT, and the
// service-prefixed TSENGINE_SERVER_PORT takes precedence over it.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	o := loaderOptions{fs: OSFileSystem{}}
	for _, opt := range opts {
		opt(&o)
	}
	files := Resolve(o.fs, serviceName, o.files)

	v := viper.New()
	if files.Config != "" && o.fs.Exists(files.Config) {
		v.SetConfigFile(files.Config)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", files.Config, err)
		}
	}
	if files.Env != "" && o.fs.Exists(files.Env) {
		if err := o.fs.LoadEnv(files.Env); err != nil {
			logger.Warn("failed to load .env file", logger.Fields("path", files.Env, logger.FieldError, err.Error()))
		}
	}

	t := reflect.TypeOf(cfg)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a pointer to a struct, got %T", cfg)
	}
	binder := envBinder{v: v, prefix: envName(serviceName)}
	if err := binder.bind("", t.Elem()); err != nil {
		return err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding config for service %s: %w", serviceName, err)
	}
	return nil
}

// envBinder binds each leaf key of a config struct to its environment
// variables. Viper only consults the environment for keys it knows about,
// so keys absent from the YAML file must be bound explicitly.
type envBinder struct {
	v      *viper.Viper
	prefix string
}

func (b envBinder) bind(key string, t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || !hasExportedFields(t) {
		if key == "" {
			return nil
		}
		return b.v.BindEnv(key, b.prefix+"_"+envName(key), envName(key))
	}

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "squash") {
			if err := b.bind(key, f.Type); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		// Lists of structs only come from the file.
		if f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct {
			continue
		}
		if err := b.bind(joinKey(key, name), f.Type); err != nil {
			return err
		}
	}
	return nil
}

func hasExportedFields(t reflect.Type) bool {
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Validatable is implemented by configuration structs that fill their own
// defaults and check themselves.
type Validatable interface {
	ApplyDefaults()
	Validate() error
}

// Load reads configuration for serviceName into a new T, applies its
// defaults and validates it.
func Load[T any, PT interface {
	*T
	Validatable
}](serviceName string, opts ...LoaderOption) (*T, error) {
	cfg := new(T)
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	PT(cfg).ApplyDefaults()
	if err := PT(cfg).Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
