package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sismed/internal/domain"

	"github.com/rs/zerolog"
)

// isolate keeps config discovery away from the developer's real files
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("SISMED_CONFIG", "")
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCapture(t, args...)
	return out, err
}

// runCapture returns stdout and stderr separately; logs go to stderr
func runCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger("warn", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Errorf("unexpected output %q", buf.String())
	}

	if _, err := newLogger("loud", "json", &buf); err == nil {
		t.Error("expected error for unknown level")
	}

	buf.Reset()
	log, _ = newLogger("info", "console", &buf)
	log.Info().Msg("pretty")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("console format should not emit JSON: %q", buf.String())
	}
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s", log.GetLevel())
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "sismed dev\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestInvokeCommand(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "data", "sismed.db")

	out, err := run(t, "--db", db, "invoke", "create_patient",
		`{"patient":{"name":"ana silva","national_id":"123","birth_date":"1980-05-01"}}`)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("create output = %q", out)
	}

	out, err = run(t, "--db", db, "invoke", "get_patients")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var patients []domain.Patient
	if err := json.Unmarshal([]byte(out), &patients); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(patients) != 1 || patients[0].Name != "ANA SILVA" {
		t.Errorf("unexpected patients %+v", patients)
	}

	_, err = run(t, "--db", db, "invoke", "drop_tables")
	if !domain.IsKind(err, domain.KindInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestBackupAndRestoreCommands(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "sismed.db")
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "--db", db, "invoke", "create_posology", `{"posology":{"text":"nova"}}`); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--db", db, "backup", backupDir)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	location := strings.TrimSpace(out)
	if location != filepath.Join(backupDir, "sismed_backup.db") {
		t.Errorf("backup location = %q", location)
	}

	if _, err := run(t, "--db", db, "invoke", "delete_posology", `{"id":11}`); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "--db", db, "restore", location)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if strings.TrimSpace(out) != "data restored successfully" {
		t.Errorf("restore output = %q", out)
	}

	out, _ = run(t, "--db", db, "invoke", "get_posologies")
	if !strings.Contains(out, `"NOVA"`) {
		t.Error("restored store should contain the posology created before the backup")
	}
}

func TestCatalogCommands(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "sismed.db")
	file := filepath.Join(dir, "catalog.json")

	if _, err := run(t, "--db", db, "catalog", "export", "--format", "json", file); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"DIAZEPAM"`) {
		t.Error("exported catalog should contain seeded medicines")
	}

	out, err := run(t, "--db", db, "catalog", "import", "--format", "json", file)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if strings.TrimSpace(out) != "imported 0 medicines, 0 posologies" {
		t.Errorf("import output = %q", out)
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "clinic.db")

	out, err := run(t, "--db", db, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	cfgPath := filepath.Join(dir, "xdg", "sismed", "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("config not written: %v", err)
	}
	if !strings.Contains(out, "36 medicines, 10 posologies, 0 patients") {
		t.Errorf("init output = %q", out)
	}
}

func TestInitUnopenableStore(t *testing.T) {
	dir := isolate(t)
	// a directory where the store file should be
	db := filepath.Join(dir, "store.db")
	if err := os.Mkdir(db, 0o755); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runCapture(t, "--db", db, "init")
	if !domain.IsKind(err, domain.KindStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), db) {
		t.Errorf("error %q should name the store path", err)
	}

	var entry struct {
		Level   string `json:"level"`
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(stderr)), &entry); err != nil {
		t.Fatalf("decode log %q: %v", stderr, err)
	}
	if entry.Level != "fatal" || entry.Path != db || entry.Message != "cannot open store" {
		t.Errorf("unexpected diagnostic %+v", entry)
	}

	if _, err := os.Stat(filepath.Join(dir, "xdg", "sismed", "config.yaml")); !os.IsNotExist(err) {
		t.Errorf("config should not be written when the store cannot open (stat: %v)", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)
	if _, err := run(t, "--log-format", "xml", "invoke", "get_patients"); err == nil {
		t.Error("expected config validation error")
	}
}
