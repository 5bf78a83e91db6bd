package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/settlement/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultAppName, cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 2*time.Second, cfg.LedgerLockTimeout)
	assert.Equal(t, ledger.FeeSinkAccountCode, cfg.FeeSinkAccount)
	assert.True(t, cfg.Fees.Transfer.Enabled)
	assert.Equal(t, "0.5", cfg.Fees.Transfer.Percentage.String())
	assert.Equal(t, int64(25), cfg.Fees.Transfer.MinFee)
	assert.False(t, cfg.Fees.Deposit.Enabled)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("FEES_TRANSFER_PERCENTAGE", "2")
	t.Setenv("FEES_TRANSFER_MIN_FEE", "5")
	t.Setenv("FEES_TRANSFER_MAX_FEE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 750*time.Millisecond, cfg.LedgerLockTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "2", cfg.Fees.Transfer.Percentage.String())
	assert.Equal(t, int64(5), cfg.Fees.Transfer.MinFee)
	assert.Equal(t, int64(50), cfg.Fees.Transfer.MaxFee)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "settlement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_env: development
fees:
  version: 4
  deposit:
    enabled: true
    percentage: 1.25
    fixed: 10
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Fees.Version)
	assert.True(t, cfg.Fees.Deposit.Enabled)
	assert.Equal(t, "1.25", cfg.Fees.Deposit.Percentage.String())
	assert.Equal(t, int64(10), cfg.Fees.Deposit.Fixed)
}

func TestLoadRequiresBackendsOutsideDev(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRejectsInvalidFees(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("FEES_WITHDRAWAL_MIN_FEE", "500")
	t.Setenv("FEES_WITHDRAWAL_MAX_FEE", "100")

	_, err := Load()
	assert.ErrorContains(t, err, "withdrawal")
}
