package postgres

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/infrastructure/config"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.PostgresConfig
		wantHost  string
		wantUser  string
		wantPass  string
		wantQuery map[string]string
	}{
		{
			name:      "defaults",
			cfg:       config.PostgresConfig{Host: "db", Database: "robolink"},
			wantHost:  "db:5432",
			wantQuery: map[string]string{"sslmode": "disable"},
		},
		{
			name: "credentials and app name",
			cfg: config.PostgresConfig{
				Host: "10.1.1.1", Port: 6432, Database: "robolink",
				Username: "gw", Password: "p@ss/word", SSLMode: "require",
				ApplicationName: "robolink-gateway",
			},
			wantHost:  "10.1.1.1:6432",
			wantUser:  "gw",
			wantPass:  "p@ss/word",
			wantQuery: map[string]string{"sslmode": "require", "application_name": "robolink-gateway"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(ConnString(tt.cfg))
			if err != nil {
				t.Fatalf("ConnString() produced invalid URL: %v", err)
			}
			if u.Scheme != "postgres" || u.Host != tt.wantHost || u.Path != "/"+tt.cfg.Database {
				t.Errorf("ConnString() = %s", u)
			}
			if got := u.User.Username(); got != tt.wantUser {
				t.Errorf("user = %q, want %q", got, tt.wantUser)
			}
			if pass, _ := u.User.Password(); pass != tt.wantPass {
				t.Errorf("password = %q, want %q", pass, tt.wantPass)
			}
			for k, v := range tt.wantQuery {
				if got := u.Query().Get(k); got != v {
					t.Errorf("query %s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := config.PostgresConfig{
		Host: "db", Database: "robolink",
		MaxConns: 8, MinConns: 2, MaxConnLifetime: 30 * time.Minute,
	}
	pc, err := PoolConfig(cfg)
	if err != nil {
		t.Fatalf("PoolConfig() error = %v", err)
	}
	if pc.MaxConns != 8 || pc.MinConns != 2 {
		t.Errorf("conns = %d/%d, want 2/8", pc.MinConns, pc.MaxConns)
	}
	if pc.MaxConnLifetime != 30*time.Minute {
		t.Errorf("MaxConnLifetime = %v", pc.MaxConnLifetime)
	}
	if pc.ConnConfig.Database != "robolink" || pc.ConnConfig.Host != "db" {
		t.Errorf("ConnConfig = %s@%s", pc.ConnConfig.Database, pc.ConnConfig.Host)
	}
}

func TestPoolConfig_MinExceedsMax(t *testing.T) {
	cfg := config.PostgresConfig{Host: "db", Database: "robolink", MaxConns: 2, MinConns: 5}
	if _, err := PoolConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("PoolConfig() error = %v, want ErrInvalidConfig", err)
	}
}
