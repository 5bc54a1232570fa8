package envcheck

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLocalName(t *testing.T) {
	cases := map[string]string{
		".env.example":                ".env.local",
		"apps/web/.env.local.example": "apps/web/.env.local",
		"studio/.env.example":         "studio/.env.local",
	}
	for in, want := range cases {
		if got := LocalName(in); got != want {
			t.Fatalf("LocalName(%q) = %q want %q", in, got, want)
		}
	}
}

func TestSetupCopiesWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.example", "SANITY_STUDIO_PROJECT_ID=\n")
	writeFile(t, dir, "apps/web/.env.example", "A=1\n")
	writeFile(t, dir, "apps/web/.env.local", "A=mine\n")

	res, err := Setup(dir, []string{".env.example", "apps/web/.env.example", "studio/.env.example"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	want := SetupResult{
		Created: []string{".env.local"},
		Skipped: []string{"apps/web/.env.local"},
		Missing: []string{"studio/.env.example"},
	}
	if !reflect.DeepEqual(res, want) {
		t.Fatalf("result = %+v want %+v", res, want)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "apps/web/.env.local"))
	if string(b) != "A=mine\n" {
		t.Fatalf("existing file was overwritten: %q", b)
	}
	b, _ = os.ReadFile(filepath.Join(dir, ".env.local"))
	if string(b) != "SANITY_STUDIO_PROJECT_ID=\n" {
		t.Fatalf("copied content = %q", b)
	}
}
