package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Mailbox.Host = "imap.example.com"
	cfg.Mailbox.Username = "alerts@example.com"
	return cfg
}

func TestDefaultNeedsOnlyMailbox(t *testing.T) {
	_, res := NormalizeAndValidate(Default())
	assert.False(t, res.OK())
	assert.Contains(t, res.Errors, "mailbox.host is required")

	_, res = NormalizeAndValidate(validConfig())
	assert.True(t, res.OK(), "errors: %v", res.Errors)
}

func TestNormalizeTrimsAndDedups(t *testing.T) {
	cfg := validConfig()
	cfg.Extract.ExcludeTerms = []string{" unsubscribe ", "Unsubscribe", "", "profile"}
	cfg.Sites = []Site{{Domain: " WWW.Board.Example.com ", Employer: " Acme "}}

	out, res := NormalizeAndValidate(cfg)
	require.True(t, res.OK(), "errors: %v", res.Errors)
	assert.Equal(t, []string{"unsubscribe", "profile"}, out.Extract.ExcludeTerms)
	assert.Equal(t, "board.example.com", out.Sites[0].Domain)
	assert.Equal(t, "Acme", out.Sites[0].Employer)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := validConfig()
	cfg.Batch.Size = 0
	cfg.Store.Driver = "mysql"
	cfg.Mailbox.Folders.Parsed = cfg.Mailbox.Folders.Jobs

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.size must be > 0")
	assert.Contains(t, err.Error(), "store.driver must be sqlite or pgx")
	assert.Contains(t, err.Error(), "mailbox.folders.jobs must differ")
}

func TestSaveAtomicAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := validConfig()
	cfg.Mailbox.Password = "secret"
	cfg.Batch.Size = 4
	cfg.Sites = []Site{{Domain: "board.example.com", Employer: "Acme", Headers: map[string]string{"Accept-Language": "es"}}}
	require.NoError(t, SaveAtomic(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Batch.Size)
	assert.Equal(t, "imap.example.com", loaded.Mailbox.Host)
	assert.Empty(t, loaded.Mailbox.Password, "secrets must not be written")
	assert.Equal(t, "es", loaded.Sites[0].Headers["Accept-Language"])

	// second save keeps a backup
	require.NoError(t, SaveAtomic(path, loaded))
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[mailbox]
host = "imap.example.org"
username = "me"

[batch]
size = 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.org", cfg.Mailbox.Host)
	assert.Equal(t, 3, cfg.Batch.Size)
	assert.Equal(t, 993, cfg.Mailbox.Port, "defaults survive")
}

func TestEnsureUserConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Batch.Size)

	again, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JOBMAIL_IMAP_PASSWORD", "pw")
	t.Setenv("JOBMAIL_STORE_DSN", "other.db")
	t.Setenv("JOBMAIL_KAFKA_BROKERS", "k1:9092,k2:9092")

	o, err := LoadEnv()
	require.NoError(t, err)

	cfg := Default()
	o.Apply(&cfg)
	assert.Equal(t, "pw", cfg.Mailbox.Password)
	assert.Equal(t, "other.db", cfg.Store.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadConfigBootstrapsDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	cfg, path, err := EnvOverrides{DataDir: dir, StoreDSN: "x.db"}.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "config.yml"), path)
	assert.Equal(t, dir, cfg.App.DataDir)
	assert.Equal(t, "x.db", cfg.Store.DSN)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
