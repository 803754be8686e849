package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	if v.GetString("app.name") != "arcana-ssr" {
		t.Errorf("app.name = %v, want arcana-ssr", v.GetString("app.name"))
	}
	if v.GetInt("server.port") != 8080 {
		t.Errorf("server.port = %v, want 8080", v.GetInt("server.port"))
	}
	if v.GetInt64("server.max_body_bytes") != 5*1024*1024 {
		t.Errorf("server.max_body_bytes = %v, want %v", v.GetInt64("server.max_body_bytes"), 5*1024*1024)
	}
	if v.GetInt("render.fetch_max_attempts") != 3 {
		t.Errorf("render.fetch_max_attempts = %v, want 3", v.GetInt("render.fetch_max_attempts"))
	}
	if v.GetDuration("render.fetch_timeout") != 60*time.Second {
		t.Errorf("render.fetch_timeout = %v, want 60s", v.GetDuration("render.fetch_timeout"))
	}
	if v.GetDuration("apollo.default_timeout") != time.Second {
		t.Errorf("apollo.default_timeout = %v, want 1s", v.GetDuration("apollo.default_timeout"))
	}
	if v.GetInt("sandbox.pool_size") != 4 {
		t.Errorf("sandbox.pool_size = %v, want 4", v.GetInt("sandbox.pool_size"))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Render:  RenderConfig{FetchMaxAttempts: 3},
				Sandbox: SandboxConfig{PoolSize: 4},
				Secret:  SecretConfig{FilePath: "/etc/arcana-ssr/secret"},
			},
			wantErr: false,
		},
		{
			name: "dev mode allows empty secret path",
			cfg: Config{
				App:     AppConfig{Dev: true},
				Render:  RenderConfig{FetchMaxAttempts: 3},
				Sandbox: SandboxConfig{PoolSize: 1},
			},
			wantErr: false,
		},
		{
			name: "zero fetch attempts is invalid",
			cfg: Config{
				Render:  RenderConfig{FetchMaxAttempts: 0},
				Sandbox: SandboxConfig{PoolSize: 1},
				Secret:  SecretConfig{FilePath: "x"},
			},
			wantErr: true,
		},
		{
			name: "zero pool size is invalid",
			cfg: Config{
				Render:  RenderConfig{FetchMaxAttempts: 3},
				Sandbox: SandboxConfig{PoolSize: 0},
				Secret:  SecretConfig{FilePath: "x"},
			},
			wantErr: true,
		},
		{
			name: "missing secret path outside dev mode is invalid",
			cfg: Config{
				Render:  RenderConfig{FetchMaxAttempts: 3},
				Sandbox: SandboxConfig{PoolSize: 1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DevModeWithoutConfigFile(t *testing.T) {
	t.Setenv("ARCANA_APP_DEV", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.App.Dev {
		t.Error("expected dev mode to be enabled from env var")
	}
	if cfg.Render.FetchMaxAttempts != 3 {
		t.Errorf("FetchMaxAttempts = %v, want 3", cfg.Render.FetchMaxAttempts)
	}
}
