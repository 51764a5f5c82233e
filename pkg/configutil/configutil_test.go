package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Domain        string `json:"domain" env:"TEST_GOVQA_DOMAIN"`
	Username      string `json:"username" env:"TEST_GOVQA_USERNAME"`
	RetryAttempts int    `json:"retry_attempts" env:"TEST_GOVQA_RETRY_ATTEMPTS"`
}

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		domain: 'https://example.govqa.us',
		username: "someone@example.com",
		retry_attempts: 3,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{username: "local@example.com"}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Domain:        "https://example.govqa.us",
		Username:      "local@example.com",
		RetryAttempts: 3,
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{domain: "https://file.govqa.us", retry_attempts: 1}`)

	t.Setenv("TEST_GOVQA_DOMAIN", "https://env.govqa.us")
	t.Setenv("TEST_GOVQA_RETRY_ATTEMPTS", "5")

	cfg, err := ReadConfigEnv[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://env.govqa.us", cfg.Domain)
	require.Equal(t, 5, cfg.RetryAttempts)

	cfg, err = ReadConfigEnv[testConfig](filepath.Join(dir, "missing.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://env.govqa.us", cfg.Domain)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	err := os.MkdirAll(nested, 0777)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "govqa-recursive.json5"), `{domain: "https://parent.govqa.us"}`)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	err = os.Chdir(nested)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := ReadRecursively[testConfig]("govqa-recursive.json5")
	require.NoError(t, err)
	require.Equal(t, "https://parent.govqa.us", cfg.Domain)

	_, err = ReadRecursively[testConfig]("govqa-recursive-missing.json5")
	require.ErrorIs(t, err, os.ErrNotExist)
}
