// Package config загружает конфигурацию сервиса: необязательный TOML-файл,
// переменные окружения поверх него и значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/scheduler"
	"github.com/shaiso/snapclone/internal/steps"
	"github.com/shaiso/snapclone/internal/telemetry"
)

// DefaultPath — путь конфигурации, если SNAPCLONE_CONFIG не задан.
const DefaultPath = "/etc/snapclone/snapclone.toml"

// Fleet drivers.
const (
	FleetDriverMemory = "memory"
)

// Config — конфигурация snapclone-server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Clone    CloneConfig    `toml:"clone"`
	MDS      MDSConfig      `toml:"mds"`
	Rescan   RescanConfig   `toml:"rescan"`
	Database DatabaseConfig `toml:"database"`
	AMQP     AMQPConfig     `toml:"amqp"`
	Fleet    FleetConfig    `toml:"fleet"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig — HTTP API.
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr"`
}

// CloneConfig — пул задач и параметры шагов.
type CloneConfig struct {
	PoolThreadNum           int    `toml:"pool_thread_num"`
	QueueSize               int    `toml:"queue_size"`
	CreateChunkConcurrency  int    `toml:"create_chunk_concurrency"`
	RecoverChunkConcurrency int    `toml:"recover_chunk_concurrency"`
	ChunkSplitSize          uint64 `toml:"chunk_split_size"`
	ChunkSelection          string `toml:"chunk_selection"`
	TempDir                 string `toml:"temp_dir"`
}

// MDSConfig — учётные данные сервиса метаданных.
type MDSConfig struct {
	RootUser     string `toml:"root_user"`
	RootPassword string `toml:"root_password"`
}

// RescanConfig — расписание повторной постановки задач.
type RescanConfig struct {
	Cron string `toml:"cron"`
}

// DatabaseConfig — хранилище записей задач. Пустой URL — хранилище в памяти.
type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

// AMQPConfig — брокер запросов и событий. Пустой URL — без брокера.
type AMQPConfig struct {
	URL string `toml:"url"`
}

// FleetConfig — реализация сервиса метаданных и флота чанков.
type FleetConfig struct {
	Driver string `toml:"driver"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Server: ServerConfig{HTTPAddr: ":8080"},
		Clone: CloneConfig{
			PoolThreadNum:           8,
			QueueSize:               1024,
			CreateChunkConcurrency:  steps.DefaultCreateChunkConcurrency,
			RecoverChunkConcurrency: steps.DefaultRecoverChunkConcurrency,
			ChunkSplitSize:          domain.DefaultChunkSplitSize,
			ChunkSelection:          string(steps.ChunkSelectionAuto),
			TempDir:                 domain.DefaultTempDir,
		},
		MDS:      MDSConfig{RootUser: "root"},
		Rescan:   RescanConfig{Cron: scheduler.DefaultSpec},
		Database: DatabaseConfig{MaxConns: 10},
		Fleet:    FleetConfig{Driver: FleetDriverMemory},
		Log:      LogConfig{Level: "INFO", Format: "json"},
	}
}

// Path возвращает путь к файлу конфигурации.
func Path() string {
	if p := os.Getenv("SNAPCLONE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load читает конфигурацию из path поверх значений по умолчанию,
// применяет переменные окружения и проверяет результат.
// Отсутствующий файл не ошибка: конфигурация необязательна.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv перекрывает значения переменными окружения.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"HTTP_ADDR":               &c.Server.HTTPAddr,
		"DB_URL":                  &c.Database.URL,
		"AMQP_URL":                &c.AMQP.URL,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
		"SNAPCLONE_RESCAN_CRON":   &c.Rescan.Cron,
		"SNAPCLONE_FLEET_DRIVER":  &c.Fleet.Driver,
		"SNAPCLONE_ROOT_USER":     &c.MDS.RootUser,
		"SNAPCLONE_ROOT_PASSWORD": &c.MDS.RootPassword,
		"SNAPCLONE_TEMP_DIR":      &c.Clone.TempDir,
		"SNAPCLONE_CHUNK_SELECT":  &c.Clone.ChunkSelection,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SNAPCLONE_POOL_THREAD_NUM":           &c.Clone.PoolThreadNum,
		"SNAPCLONE_QUEUE_SIZE":                &c.Clone.QueueSize,
		"SNAPCLONE_CREATE_CHUNK_CONCURRENCY":  &c.Clone.CreateChunkConcurrency,
		"SNAPCLONE_RECOVER_CHUNK_CONCURRENCY": &c.Clone.RecoverChunkConcurrency,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("SNAPCLONE_CHUNK_SPLIT_SIZE"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SNAPCLONE_CHUNK_SPLIT_SIZE: %w", err)
		}
		c.Clone.ChunkSplitSize = n
	}
	return nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var errs []error

	if c.Clone.PoolThreadNum <= 0 {
		errs = append(errs, errors.New("clone.pool_thread_num must be positive"))
	}
	if c.Clone.QueueSize <= 0 {
		errs = append(errs, errors.New("clone.queue_size must be positive"))
	}
	if c.Clone.CreateChunkConcurrency <= 0 || c.Clone.RecoverChunkConcurrency <= 0 {
		errs = append(errs, errors.New("clone chunk concurrency must be positive"))
	}
	if c.Clone.ChunkSplitSize == 0 || domain.DefaultChunkSize%c.Clone.ChunkSplitSize != 0 {
		errs = append(errs, fmt.Errorf("clone.chunk_split_size must divide the chunk size %d", domain.DefaultChunkSize))
	}
	if _, err := steps.ParseChunkSelection(c.Clone.ChunkSelection); err != nil {
		errs = append(errs, fmt.Errorf("clone.chunk_selection: %w", err))
	}
	if !strings.HasPrefix(c.Clone.TempDir, "/") {
		errs = append(errs, fmt.Errorf("clone.temp_dir must be absolute, got %q", c.Clone.TempDir))
	}
	if err := scheduler.ValidateSpec(c.Rescan.Cron); err != nil {
		errs = append(errs, fmt.Errorf("rescan.cron: %w", err))
	}
	if c.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.max_conns must not be negative"))
	}
	if c.Fleet.Driver != FleetDriverMemory {
		errs = append(errs, fmt.Errorf("fleet.driver: unsupported driver %q", c.Fleet.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// StepOptions возвращает настройки шагов.
func (c *Config) StepOptions() steps.Options {
	// ParseChunkSelection уже проверен в Validate.
	selection, _ := steps.ParseChunkSelection(c.Clone.ChunkSelection)
	return steps.Options{
		TempDir:                 c.Clone.TempDir,
		RootUser:                c.MDS.RootUser,
		CreateChunkConcurrency:  c.Clone.CreateChunkConcurrency,
		RecoverChunkConcurrency: c.Clone.RecoverChunkConcurrency,
		ChunkSplitSize:          c.Clone.ChunkSplitSize,
		ChunkSelection:          selection,
	}
}

// Logging возвращает настройки логгера.
func (c *Config) Logging() telemetry.LogConfig {
	return telemetry.LogConfig{Level: c.Log.Level, Format: strings.ToLower(c.Log.Format)}
}
