package config

import (
	"os"
	"testing"
	"time"

	"youbble/model"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestLoad_Defaults(t *testing.T) {
	defer chdir(t, t.TempDir())()

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, BackendJSON, cfg.LedgerBackend)
	require.Equal(t, BackendLocal, cfg.UploadBackend)
	require.True(t, cfg.SubmissionDeadline.IsZero())
	require.Equal(t, int64(50<<20), cfg.MaxAudioBytes)
	require.Equal(t, int64(30), cfg.CategoryFees[model.CategorySync])
	require.True(t, cfg.PaymentAllowPlaceholder)
	require.Equal(t, "usd", cfg.PaymentCurrency)
}

func TestLoad_FromEnvironment(t *testing.T) {
	defer chdir(t, t.TempDir())()
	t.Setenv("COMPETITION_DEADLINE", "2025-12-31T23:59:59Z")
	t.Setenv("MAX_AUDIO_BYTES", "1024")
	t.Setenv("CATEGORY_FEES", "Open:25, Sync:40")
	t.Setenv("LEDGER_BACKEND", "SQLite")
	t.Setenv("ACCEPTED_AUDIO_EXTENSIONS", ".MP3, .m4a ,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), cfg.SubmissionDeadline)
	require.Equal(t, int64(1024), cfg.Policy().MaxAudioBytes)
	require.Equal(t, int64(25), cfg.CategoryFees[model.CategoryOpen])
	require.Equal(t, int64(15), cfg.CategoryFees[model.CategoryTeen])
	require.Equal(t, int64(40), cfg.CategoryFees[model.CategorySync])
	require.Equal(t, BackendSQLite, cfg.LedgerBackend)
	require.Equal(t, []string{".mp3", ".m4a"}, cfg.AudioExtensions)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	defer chdir(t, t.TempDir())()
	t.Setenv("COMPETITION_DEADLINE", "next friday")
	t.Setenv("MAX_AUDIO_BYTES", "-5")
	t.Setenv("UPLOAD_BACKEND", "ftp")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "COMPETITION_DEADLINE")
	require.Contains(t, err.Error(), "MAX_AUDIO_BYTES")
	require.Contains(t, err.Error(), "UPLOAD_BACKEND")
}

func TestParseFees(t *testing.T) {
	_, err := ParseFees("Jazz:10")
	require.Error(t, err)

	_, err = ParseFees("Open=10")
	require.Error(t, err)

	fees, err := ParseFees("Teen:0")
	require.NoError(t, err)
	require.Equal(t, int64(0), fees[model.CategoryTeen])
}
