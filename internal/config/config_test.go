package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeEnvFile(t, `
# target service
API_URL=https://apichallenges.example.com
API_TIMEOUT=2.5
API_X_CHALLENGER="abc-123"
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Settings{
		APIURL:      "https://apichallenges.example.com",
		Timeout:     2500 * time.Millisecond,
		XChallenger: "abc-123",
		LogLevel:    "DEBUG",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeEnvFile(t, "API_URL=http://from-file.example\nAPI_X_CHALLENGER=file-token\n")
	t.Setenv(EnvXChallenger, "env-token")
	t.Setenv(EnvLogLevel, "WARN")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.XChallenger != "env-token" {
		t.Errorf("XChallenger = %q, want env override", got.XChallenger)
	}
	if got.LogLevel != "WARN" {
		t.Errorf("LogLevel = %q, want WARN", got.LogLevel)
	}
}

func TestLoadMissingFileTolerated(t *testing.T) {
	t.Setenv(EnvAPIURL, "http://localhost:4567")
	t.Setenv(EnvXChallenger, "tok")

	got, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Load with absent template: %v", err)
	}
	if got.APIURL != "http://localhost:4567" {
		t.Errorf("APIURL = %q", got.APIURL)
	}
	if got.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", got.Timeout)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"ok", Settings{APIURL: "https://x.test", Timeout: time.Second, XChallenger: "t"}, false},
		{"missing url", Settings{Timeout: time.Second, XChallenger: "t"}, true},
		{"bad scheme", Settings{APIURL: "ftp://x.test", Timeout: time.Second, XChallenger: "t"}, true},
		{"no host", Settings{APIURL: "https://", Timeout: time.Second, XChallenger: "t"}, true},
		{"zero timeout", Settings{APIURL: "https://x.test", XChallenger: "t"}, true},
		{"blank token", Settings{APIURL: "https://x.test", Timeout: time.Second, XChallenger: "  "}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseEnvFile(t *testing.T) {
	path := writeEnvFile(t, "A=1\n\n# comment\nB='two words'\nC = spaced \n")
	got, err := ParseEnvFile(path)
	if err != nil {
		t.Fatalf("ParseEnvFile: %v", err)
	}
	want := map[string]string{"A": "1", "B": "two words", "C": "spaced"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEnvFileRejectsGarbage(t *testing.T) {
	path := writeEnvFile(t, "not a pair\n")
	if _, err := ParseEnvFile(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}
