package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/snapclone/internal/config"
	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/steps"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapclone.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
http_addr = ":9090"

[clone]
pool_thread_num = 4
queue_size = 32
create_chunk_concurrency = 16
recover_chunk_concurrency = 8
chunk_split_size = 1048576
chunk_selection = "all"
temp_dir = "/tmp-clone"

[mds]
root_user = "admin"
root_password = "secret"

[rescan]
cron = "*/5 * * * *"

[database]
url = "postgresql://u:p@db:5432/snapclone"
max_conns = 20

[amqp]
url = "amqp://guest:guest@mq:5672/"

[log]
level = "debug"
format = "text"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, 4, cfg.Clone.PoolThreadNum)
	assert.Equal(t, 32, cfg.Clone.QueueSize)
	assert.Equal(t, uint64(1<<20), cfg.Clone.ChunkSplitSize)
	assert.Equal(t, "admin", cfg.MDS.RootUser)
	assert.Equal(t, "*/5 * * * *", cfg.Rescan.Cron)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQP.URL)
	assert.Equal(t, config.FleetDriverMemory, cfg.Fleet.Driver, "unset keys keep defaults")

	opts := cfg.StepOptions()
	assert.Equal(t, steps.ChunkSelectionAll, opts.ChunkSelection)
	assert.Equal(t, "/tmp-clone", opts.TempDir)
	assert.Equal(t, "admin", opts.RootUser)
	assert.Equal(t, 16, opts.CreateChunkConcurrency)

	logCfg := cfg.Logging()
	assert.Equal(t, "text", logCfg.Format)
	assert.Equal(t, "debug", logCfg.Level)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[clone]
pool_threads = 4
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clone.pool_threads")
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, `[clone`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[clone]
pool_thread_num = 4
`)
	t.Setenv("SNAPCLONE_POOL_THREAD_NUM", "12")
	t.Setenv("DB_URL", "postgresql://env/db")
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("SNAPCLONE_CHUNK_SPLIT_SIZE", "4194304")
	t.Setenv("SNAPCLONE_RESCAN_CRON", "@every 10s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Clone.PoolThreadNum)
	assert.Equal(t, "postgresql://env/db", cfg.Database.URL)
	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.Equal(t, uint64(4<<20), cfg.Clone.ChunkSplitSize)
	assert.Equal(t, "@every 10s", cfg.Rescan.Cron)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("SNAPCLONE_QUEUE_SIZE", "many")
	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNAPCLONE_QUEUE_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero pool", func(c *config.Config) { c.Clone.PoolThreadNum = 0 }},
		{"zero queue", func(c *config.Config) { c.Clone.QueueSize = 0 }},
		{"zero concurrency", func(c *config.Config) { c.Clone.RecoverChunkConcurrency = 0 }},
		{"split not dividing chunk", func(c *config.Config) { c.Clone.ChunkSplitSize = 3 }},
		{"unknown selection", func(c *config.Config) { c.Clone.ChunkSelection = "some" }},
		{"relative temp dir", func(c *config.Config) { c.Clone.TempDir = "clone" }},
		{"bad cron", func(c *config.Config) { c.Rescan.Cron = "whenever" }},
		{"unknown driver", func(c *config.Config) { c.Fleet.Driver = "s3" }},
		{"unknown log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, domain.DefaultChunkSplitSize, cfg.Clone.ChunkSplitSize)
}

func TestPath(t *testing.T) {
	t.Setenv("SNAPCLONE_CONFIG", "/opt/snapclone.toml")
	assert.Equal(t, "/opt/snapclone.toml", config.Path())

	t.Setenv("SNAPCLONE_CONFIG", "")
	assert.Equal(t, config.DefaultPath, config.Path())
}
