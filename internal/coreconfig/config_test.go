package coreconfig

import (
	"errors"
	"os"
	"testing"
)

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := Load(
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		WithEnv(func(string) (string, bool) { return "", false }),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxContinuationRounds != DefaultMaxContinuationRounds {
		t.Errorf("MaxContinuationRounds = %d, want %d", cfg.MaxContinuationRounds, DefaultMaxContinuationRounds)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSQLite)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	yamlDoc := []byte(`
max_continuation_rounds: 8
backend: postgres
postgres_dsn: "postgres://localhost/taskcore"
`)
	cfg, err := Load(
		WithFileReader(func(string) ([]byte, error) { return yamlDoc, nil }),
		WithEnv(func(string) (string, bool) { return "", false }),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxContinuationRounds != 8 {
		t.Errorf("MaxContinuationRounds = %d, want 8", cfg.MaxContinuationRounds)
	}
	if cfg.Backend != BackendPostgres {
		t.Errorf("Backend = %q, want postgres", cfg.Backend)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	yamlDoc := []byte(`max_continuation_rounds: 8`)
	env := map[string]string{"TASKCORE_MAX_CONTINUATION_ROUNDS": "12"}
	cfg, err := Load(
		WithFileReader(func(string) ([]byte, error) { return yamlDoc, nil }),
		WithEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxContinuationRounds != 12 {
		t.Errorf("MaxContinuationRounds = %d, want 12", cfg.MaxContinuationRounds)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	_, err := Load(
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		WithEnv(func(k string) (string, bool) {
			if k == "TASKCORE_BACKEND" {
				return "mongodb", true
			}
			return "", false
		}),
	)
	if err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestLoad_RejectsPostgresWithoutDSN(t *testing.T) {
	_, err := Load(
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		WithEnv(func(k string) (string, bool) {
			if k == "TASKCORE_BACKEND" {
				return "postgres", true
			}
			return "", false
		}),
	)
	if err == nil {
		t.Fatal("expected an error for backend=postgres with no DSN")
	}
}

func TestLoad_PropagatesNonNotExistReadError(t *testing.T) {
	wantErr := errors.New("permission denied")
	_, err := Load(WithFileReader(func(string) ([]byte, error) { return nil, wantErr }))
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
}
