package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"wxstats/internal/config"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.Config{DSN: "file:other.db?mode=ro", Path: "ignored.db"},
			want: "file:other.db?mode=ro",
		},
		{
			name: "plain path",
			cfg:  config.Config{Path: filepath.Join(dir, "a.db")},
			want: "file:" + filepath.Join(dir, "a.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "file uri with params",
			cfg:  config.Config{Path: "file:" + filepath.Join(dir, "b.db") + "?cache=shared"},
			want: "file:" + filepath.Join(dir, "b.db") + "?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDSN_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "wx.db")
	dsn, err := buildDSN(config.Config{Path: path})
	if err != nil {
		t.Fatalf("buildDSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:"+path) {
		t.Errorf("dsn = %q", dsn)
	}

	db, err := OpenMigrated(context.Background(), config.Config{Driver: "sqlite3", Path: path, MaxOpenConns: 1, MaxIdleConns: 1}, nil)
	if err != nil {
		t.Fatalf("OpenMigrated: %v", err)
	}
	defer func() { _ = Close(db) }()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM weather_records`).Scan(&n); err != nil {
		t.Fatalf("weather_records missing: %v", err)
	}
}

func TestOpen_WithSQLLogging(t *testing.T) {
	handler := &captureHandler{}
	cfg := config.Config{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "logged.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogSQL:       true,
	}

	db, err := OpenMigrated(context.Background(), cfg, newCaptureLogger(handler))
	if err != nil {
		t.Fatalf("OpenMigrated: %v", err)
	}
	defer func() { _ = Close(db) }()

	if len(handler.recordsFor(t, sqlLogMessage)) == 0 {
		t.Fatal("expected migration statements to be logged")
	}
	if _, err := db.Exec(`SELECT COUNT(*) FROM weather_stats`); err != nil {
		t.Fatalf("weather_stats missing: %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v, want nil", err)
	}
}
