package envcheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func mapEnv(m map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func node(v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return v, nil }
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func validEnv() map[string]string {
	return map[string]string{
		"SANITY_STUDIO_PROJECT_ID": "abc123",
		"SANITY_STUDIO_DATASET":    "production",
		"SANITY_API_READ_TOKEN":    "sk-token",
		"LOG_LEVEL":                "info",
		"CI":                       "false",
	}
}

func newValidator(t *testing.T, env map[string]string, nodeVersion string) (*Validator, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "pnpm-lock.yaml", "lockfileVersion: '9.0'\n")
	return New(Options{
		Dir:          dir,
		Lockfile:     "pnpm-lock.yaml",
		MinNodeMajor: 20,
		NodeVersion:  node(nodeVersion),
		Getenv:       mapEnv(env),
	}), dir
}

func fields(is []Issue) []string {
	out := make([]string, 0, len(is))
	for _, i := range is {
		out = append(out, i.Field)
	}
	return out
}

func TestValidateAllSet(t *testing.T) {
	v, _ := newValidator(t, validEnv(), "v20.11.1")
	res := v.Validate(context.Background())
	if !res.Valid || len(res.Errors) != 0 {
		t.Fatalf("expected valid, got %+v", res)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", res.Warnings)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	env := validEnv()
	delete(env, "SANITY_STUDIO_PROJECT_ID")
	env["SANITY_STUDIO_DATASET"] = "Bad Dataset"
	v, _ := newValidator(t, env, "v22.0.0")
	res := v.Validate(context.Background())
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	got := fields(res.Errors)
	want := []string{"SANITY_STUDIO_PROJECT_ID", "SANITY_STUDIO_DATASET"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("error fields = %v want %v", got, want)
	}
}

func TestValidatePublicFallback(t *testing.T) {
	env := validEnv()
	delete(env, "SANITY_STUDIO_PROJECT_ID")
	env["NEXT_PUBLIC_SANITY_PROJECT_ID"] = "fallback1"
	v, _ := newValidator(t, env, "v20.0.0")
	if res := v.Validate(context.Background()); !res.Valid {
		t.Fatalf("fallback variable should satisfy project id: %+v", res.Errors)
	}
}

func TestValidateAdvisoryWarnings(t *testing.T) {
	env := validEnv()
	delete(env, "SANITY_API_READ_TOKEN")
	env["LOG_LEVEL"] = "chatty"
	env["CI"] = "maybe"
	v, _ := newValidator(t, env, "v20.0.0")
	res := v.Validate(context.Background())
	if !res.Valid {
		t.Fatalf("warnings must not invalidate: %+v", res.Errors)
	}
	got := fields(res.Warnings)
	want := []string{"SANITY_API_READ_TOKEN", "LOG_LEVEL", "CI"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("warning fields = %v want %v", got, want)
	}
}

func TestValidateLockfileMissing(t *testing.T) {
	v, dir := newValidator(t, validEnv(), "v20.0.0")
	if err := os.Remove(filepath.Join(dir, "pnpm-lock.yaml")); err != nil {
		t.Fatalf("remove lockfile: %v", err)
	}
	res := v.Validate(context.Background())
	if res.Valid || fields(res.Errors)[0] != "lockfile" {
		t.Fatalf("expected lockfile error, got %+v", res)
	}
}

func TestValidateNodeVersion(t *testing.T) {
	v, _ := newValidator(t, validEnv(), "v18.19.0")
	res := v.Validate(context.Background())
	if res.Valid || !strings.Contains(res.Errors[0].Message, "v18.19.0") {
		t.Fatalf("expected node version error, got %+v", res)
	}

	v.opts.NodeVersion = func(context.Context) (string, error) { return "", errors.New("node not found on PATH") }
	res = v.Validate(context.Background())
	if !res.Valid || len(res.Warnings) != 1 || res.Warnings[0].Field != "node" {
		t.Fatalf("missing node should only warn, got %+v", res)
	}
}

func TestValidateReadsDotenvFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SANITY_STUDIO_PROJECT_ID=fromenv\nSANITY_STUDIO_DATASET=staging\n")
	writeFile(t, dir, ".env.local", "SANITY_STUDIO_DATASET=production\n")
	v := New(Options{
		Dir:      dir,
		EnvFiles: []string{".env", ".env.local", ".env.missing"},
		Getenv:   mapEnv(map[string]string{"SANITY_API_READ_TOKEN": "x"}),
	})
	res := v.Validate(context.Background())
	if !res.Valid {
		t.Fatalf("expected valid from dotenv files, got %+v", res.Errors)
	}
	sum := v.Summarize(context.Background())
	if sum.ProjectID != "fromenv" || sum.Dataset != "production" {
		t.Fatalf("later dotenv file should win: %+v", sum)
	}
}

func TestProcessEnvOverridesDotenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SANITY_STUDIO_DATASET=staging\n")
	v := New(Options{Dir: dir, EnvFiles: []string{".env"}, Getenv: mapEnv(map[string]string{"SANITY_STUDIO_DATASET": "production"})})
	if got := v.Summarize(context.Background()).Dataset; got != "production" {
		t.Fatalf("dataset = %q", got)
	}
}

func TestSummarizeDefaults(t *testing.T) {
	v := New(Options{
		Getenv:      mapEnv(map[string]string{"CI": "true"}),
		NodeVersion: func(context.Context) (string, error) { return "", errors.New("nope") },
	})
	s := v.Summarize(context.Background())
	want := Summary{LogLevel: "info", CI: true}
	if s != want {
		t.Fatalf("summary = %+v want %+v", s, want)
	}
}

func TestParseNodeMajor(t *testing.T) {
	cases := map[string]int{"v20.11.1": 20, "18.0.0": 18, " v22 \n": 22}
	for in, want := range cases {
		got, err := ParseNodeMajor(in)
		if err != nil || got != want {
			t.Fatalf("ParseNodeMajor(%q) = %d, %v", in, got, err)
		}
	}
	if _, err := ParseNodeMajor("banana"); err == nil {
		t.Fatalf("expected error")
	}
}
