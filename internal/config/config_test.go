package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, expected %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.JWT.ExpireHour != 24 {
		t.Errorf("JWT.ExpireHour = %d, expected 24", cfg.JWT.ExpireHour)
	}
	if cfg.Maintenance.OrderAuditCron != "@every 1h" {
		t.Errorf("Maintenance.OrderAuditCron = %q, expected %q", cfg.Maintenance.OrderAuditCron, "@every 1h")
	}
	if GlobalConfig != cfg {
		t.Error("GlobalConfig should point at the loaded config")
	}
}

func TestLoad_FileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: \"9090\"\ndatabase:\n  driver: postgres\n  dsn: host=db\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, expected %q", cfg.Server.Port, "9090")
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, expected default %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, expected %q", cfg.Database.Driver, "postgres")
	}
	if cfg.Cache.AnalyticsTTLSeconds != 300 {
		t.Errorf("Cache.AnalyticsTTLSeconds = %d, expected 300", cfg.Cache.AnalyticsTTLSeconds)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on invalid YAML")
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "user:pass@tcp(db:3306)/board")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ORDER_AUDIT_CRON", "*/5 * * * *")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()

	if cfg.Server.Port != "7000" {
		t.Errorf("Server.Port = %q, expected %q", cfg.Server.Port, "7000")
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, expected %q", cfg.Database.Driver, "mysql")
	}
	if cfg.Database.DSN != "user:pass@tcp(db:3306)/board" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("JWT.Secret = %q, expected %q", cfg.JWT.Secret, "from-env")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, expected %q", cfg.Log.Level, "debug")
	}
	if cfg.Maintenance.OrderAuditCron != "*/5 * * * *" {
		t.Errorf("Maintenance.OrderAuditCron = %q", cfg.Maintenance.OrderAuditCron)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
	}{
		{"host only", "redis://localhost:6379", "localhost:6379", "", 0},
		{"with db", "redis://cache:6380/2", "cache:6380", "", 2},
		{"with password", "redis://:s3cret@cache:6379/1", "cache:6379", "s3cret", 1},
		{"user and password", "redis://default:pw@cache:6379", "cache:6379", "pw", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.parseRedisURL(tt.url)
			if cfg.Redis.Addr != tt.addr {
				t.Errorf("Addr = %q, expected %q", cfg.Redis.Addr, tt.addr)
			}
			if cfg.Redis.Password != tt.password {
				t.Errorf("Password = %q, expected %q", cfg.Redis.Password, tt.password)
			}
			if cfg.Redis.DB != tt.db {
				t.Errorf("DB = %d, expected %d", cfg.Redis.DB, tt.db)
			}
		})
	}
}

func TestRedisURLEnablesRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://queue:6379/3")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()

	if !cfg.Redis.Enabled {
		t.Error("REDIS_URL should enable redis")
	}
	if cfg.Redis.Addr != "queue:6379" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = "8181"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Port != "8181" {
		t.Errorf("Server.Port = %q, expected %q", loaded.Server.Port, "8181")
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: "8080"}
	if got := s.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, expected %q", got, "127.0.0.1:8080")
	}
}
