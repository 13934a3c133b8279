package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_FromRepoRoot(t *testing.T) {
	dir := t.TempDir()
	body := "version: 1\nrunner_dir: benches\ndisabled: [slow-one]\nparams:\n  width: [\"512\", \"1024\"]\n"
	if err := os.WriteFile(filepath.Join(dir, ".gridbench"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q", res.RepoRoot, dir)
	}
	if res.Config.Version != 1 {
		t.Errorf("Version = %d, want 1", res.Config.Version)
	}
	if got, want := res.Config.RunnerDir(dir), filepath.Join(dir, "benches"); got != want {
		t.Errorf("RunnerDir = %q, want %q", got, want)
	}
	if !res.Config.IsDisabled("slow-one") {
		t.Error("IsDisabled(slow-one) = false, want true")
	}
	if res.Config.IsDisabled("other") {
		t.Error("IsDisabled(other) = true, want false")
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gridbench"), []byte("version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RepoRoot != root {
		t.Errorf("RepoRoot = %q, want %q", res.RepoRoot, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := res.Config.RunnerDir(dir), filepath.Join(dir, DefaultRunnerDir); got != want {
		t.Errorf("RunnerDir = %q, want %q", got, want)
	}
	if got, want := res.Config.ResultsDir(dir), filepath.Join(dir, DefaultResultsDir); got != want {
		t.Errorf("ResultsDir = %q, want %q", got, want)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gridbench"), []byte("version: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestDefaultOverrides_SortedAndComplete(t *testing.T) {
	cfg := &Config{Params: map[string][]string{
		"width": {"512"},
		"algo":  {"fbp", "gridrec"},
	}}
	s := cfg.DefaultOverrides()
	if got, want := s.Names(), []string{"algo", "width"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if got := s.Values("algo"); !reflect.DeepEqual(got, []string{"fbp", "gridrec"}) {
		t.Errorf("Values(algo) = %v", got)
	}
}
