package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/trailguard/types"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_ID", "secret")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SYMBOL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %v, expected BTC/USDT", cfg.Symbol)
	}
	if !cfg.TrailingStopPercent.Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("TrailingStopPercent = %v, expected 0.02", cfg.TrailingStopPercent)
	}
	if !cfg.EmergencyExitPercent.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("EmergencyExitPercent = %v, expected 0.05", cfg.EmergencyExitPercent)
	}
	if cfg.TriggerBasis != types.BasisMark {
		t.Errorf("TriggerBasis = %v, expected mark", cfg.TriggerBasis)
	}
	if cfg.MaxRetries != 3 || cfg.RetryBaseDelay != 2*time.Second {
		t.Errorf("retries = %d/%v, expected 3/2s", cfg.MaxRetries, cfg.RetryBaseDelay)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trailguard.yaml")
	yaml := []byte(`
auth_id: from-file
symbol: ETH/USDC
trailing_stop_percent: 0.03
trailing_stop_type: ByLastPrice
poll_interval: 5s
leverage: 3
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTH_ID", "")
	t.Setenv("SYMBOL", "")
	t.Setenv("LEVERAGE", "")
	t.Setenv("TRAILING_STOP_TYPE", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("TRAILING_STOP_PERCENT", "0.01")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.AuthID != "from-file" {
		t.Errorf("AuthID = %v, expected from-file", cfg.AuthID)
	}
	if cfg.BaseAsset != "ETH" || cfg.QuoteAsset != "USDC" {
		t.Errorf("assets = %s/%s, expected ETH/USDC", cfg.BaseAsset, cfg.QuoteAsset)
	}
	if !cfg.TrailingStopPercent.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("TrailingStopPercent = %v, expected env value 0.01", cfg.TrailingStopPercent)
	}
	if cfg.TriggerBasis != types.BasisLast {
		t.Errorf("TriggerBasis = %v, expected last", cfg.TriggerBasis)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, expected 5s", cfg.PollInterval)
	}
	if !cfg.Leverage.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Leverage = %v, expected 3", cfg.Leverage)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing auth id", map[string]string{"AUTH_ID": ""}},
		{"trailing percent too large", map[string]string{"TRAILING_STOP_PERCENT": "1.5"}},
		{"emergency percent zero", map[string]string{"EMERGENCY_EXIT_PERCENT": "0"}},
		{"negative leverage", map[string]string{"LEVERAGE": "-2"}},
		{"bad trigger basis", map[string]string{"TRAILING_STOP_TYPE": "ByIndexPrice"}},
		{"live without keys", map[string]string{"DRY_RUN": "false", "API_KEY": "", "API_SECRET": ""}},
		{"bad symbol", map[string]string{"SYMBOL": "BTCUSDT"}},
		{"bad price feed", map[string]string{"PRICE_FEED": "carrier-pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_ID", "secret")
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
