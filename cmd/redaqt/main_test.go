package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	pdo "github.com/redaqt/pdo-go"
	"github.com/redaqt/pdo-go/internal/keyexchange/kxtest"
)

const (
	testAPIKey = "test-api-key"
	testKey    = "0123456789abcdef0123456789abcdef"
)

// isolate runs the test in an empty working directory and home so no local
// redaqt.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	return dir
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	globalFlags(fs)
	fs.String("policy", "", "")
	fs.Bool("certificate", false, "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := loadConfig(parseFlags(t))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Service.Timeout != 5*time.Second {
		t.Errorf("Service.Timeout = %v, want 5s", cfg.Service.Timeout)
	}
	if cfg.Settings.DefaultPolicy != string(pdo.NoPolicy) {
		t.Errorf("DefaultPolicy = %q", cfg.Settings.DefaultPolicy)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Issuer.Validity != 365*24*time.Hour {
		t.Errorf("Issuer.Validity = %v", cfg.Issuer.Validity)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := isolate(t)
	yaml := `account:
  api_key: from-file
  alias: file-alias
service:
  timeout: 2s
  sealed_keys: true
settings:
  default_policy: lock_to_user
`
	if err := os.WriteFile(filepath.Join(dir, "redaqt.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDAQT_ACCOUNT_API_KEY", "from-env")

	cfg, err := loadConfig(parseFlags(t, "--policy", "open_with_keyword", "--log-level", "debug"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"env over file", cfg.Account.APIKey, "from-env"},
		{"file over default", cfg.Account.Alias, "file-alias"},
		{"flag over file", cfg.Settings.DefaultPolicy, "open_with_keyword"},
		{"flag over default", cfg.Log.Level, "debug"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Service.Timeout != 2*time.Second {
		t.Errorf("Service.Timeout = %v, want 2s", cfg.Service.Timeout)
	}
	if !cfg.Service.SealedKeys {
		t.Error("Service.SealedKeys = false")
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := isolate(t)
	unsetEnv(t, "REDAQT_ACCOUNT_EMAIL")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("REDAQT_ACCOUNT_EMAIL=jdoe@example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(parseFlags(t))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Account.Email != "jdoe@example.com" {
		t.Errorf("Account.Email = %q", cfg.Account.Email)
	}
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	dir := isolate(t)
	_, err := loadConfig(parseFlags(t, "--config", filepath.Join(dir, "missing.yaml")))
	if err == nil {
		t.Fatal("loadConfig() error = nil, want error for missing config file")
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := &Config{}
	cfg.Service.SealedKeys = true
	cfg.Service.PinnedServerKey = base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	cfg.Issuer.Name = "Local CA"
	cfg.TempDir = "/var/tmp"

	opts, err := cfg.engineOptions()
	if err != nil {
		t.Fatalf("engineOptions() error = %v", err)
	}
	// timeout, checksum, sealed, pin, issuer, temp dir
	if len(opts) != 6 {
		t.Errorf("len(opts) = %d, want 6", len(opts))
	}

	cfg.Service.PinnedServerKey = "not base64!"
	if _, err := cfg.engineOptions(); err == nil {
		t.Error("engineOptions() error = nil for an invalid pinned key")
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"seal"}, 2},
		{"help", []string{"help"}, 0},
		{"protect without files", []string{"protect"}, 2},
		{"inspect two carriers", []string{"inspect", "a.pdf", "b.pdf"}, 2},
		{"bad flag", []string{"access", "--nope"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(context.Background(), tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("run() = %d, want %d (stderr %q)", got, tt.want, stderr.String())
			}
		})
	}
}

func TestRun_ProtectAccessInspect(t *testing.T) {
	dir := isolate(t)

	stub, err := kxtest.New(testAPIKey, testKey)
	if err != nil {
		t.Fatalf("kxtest.New() error = %v", err)
	}
	srv := stub.Start()
	t.Cleanup(srv.Close)

	t.Setenv("REDAQT_ACCOUNT_API_KEY", testAPIKey)
	t.Setenv("REDAQT_ACCOUNT_GRANT_TOKEN", "grant-token")
	t.Setenv("REDAQT_ACCOUNT_GRANT_EXPIRATION", "2099-12-31")
	t.Setenv("REDAQT_ACCOUNT_ALIAS", "alice")
	t.Setenv("REDAQT_SERVICE_ENCRYPT_URL", srv.URL+"/encrypt")
	t.Setenv("REDAQT_SERVICE_DECRYPT_URL", srv.URL+"/decrypt")
	t.Setenv("REDAQT_TEMP_DIR", t.TempDir())

	src := filepath.Join(dir, "note.txt")
	content := []byte("meet at the usual place")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}
	metricsFile := filepath.Join(dir, "redaqt.prom")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"protect", "--metrics-file", metricsFile, src}, &stdout, &stderr); code != 0 {
		t.Fatalf("protect exit = %d, stderr = %s", code, stderr.String())
	}
	carrier := src + ".pdf"
	if !strings.Contains(stdout.String(), carrier) {
		t.Errorf("protect output = %q, want carrier %s", stdout.String(), carrier)
	}
	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), `pdo_protect_total{result="ok"} 1`) {
		t.Errorf("metrics file does not count the protect:\n%s", prom)
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"inspect", carrier}, &stdout, &stderr); code != 0 {
		t.Fatalf("inspect exit = %d, stderr = %s", code, stderr.String())
	}
	var in pdo.Inspection
	if err := json.Unmarshal(stdout.Bytes(), &in); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, stdout.String())
	}
	if in.Banner != pdo.DefaultProduct.Banner() {
		t.Errorf("Banner = %q", in.Banner)
	}
	if _, ok := in.Metadata["smart_policy"]; ok {
		t.Error("inspect printed the smart policy")
	}

	outDir := t.TempDir()
	stdout.Reset()
	if code := run(context.Background(), []string{"access", "-o", outDir, carrier}, &stdout, &stderr); code != 0 {
		t.Fatalf("access exit = %d, stderr = %s", code, stderr.String())
	}
	got, err := os.ReadFile(filepath.Join(outDir, "note.txt"))
	if err != nil {
		t.Fatalf("accessed file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("accessed content = %q, want %q", got, content)
	}
}

func TestRun_ServiceErrorExitCode(t *testing.T) {
	dir := isolate(t)

	stub, err := kxtest.New(testAPIKey, testKey)
	if err != nil {
		t.Fatalf("kxtest.New() error = %v", err)
	}
	stub.SetBehavior(kxtest.Behavior{ServiceError: "expired"})
	srv := stub.Start()
	t.Cleanup(srv.Close)

	t.Setenv("REDAQT_ACCOUNT_API_KEY", testAPIKey)
	t.Setenv("REDAQT_ACCOUNT_GRANT_TOKEN", "grant-token")
	t.Setenv("REDAQT_ACCOUNT_GRANT_EXPIRATION", "2099-12-31")
	t.Setenv("REDAQT_SERVICE_ENCRYPT_URL", srv.URL+"/encrypt")
	t.Setenv("REDAQT_SERVICE_DECRYPT_URL", srv.URL+"/decrypt")

	src := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"protect", src}, &stdout, &stderr); code != 1 {
		t.Fatalf("protect exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "expired") {
		t.Errorf("stderr = %q, want the service message", stderr.String())
	}
	if _, err := os.Stat(src + ".pdf"); !os.IsNotExist(err) {
		t.Errorf("carrier exists after a refused key request: %v", err)
	}
}
