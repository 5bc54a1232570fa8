package envcheck

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SetupResult lists paths relative to the project directory.
type SetupResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
	Missing []string `json:"missing"`
}

// LocalName maps an example file to the local file it seeds:
// ".env.example" -> ".env.local", "apps/web/.env.local.example" -> "apps/web/.env.local".
func LocalName(example string) string {
	base := strings.TrimSuffix(example, ".example")
	if !strings.HasSuffix(base, ".local") {
		base += ".local"
	}
	return base
}

// Setup copies each example into its local name unless the local file
// already exists. Existing files are never overwritten.
func Setup(dir string, examples []string) (SetupResult, error) {
	var res SetupResult
	for _, ex := range examples {
		src := filepath.Join(dir, ex)
		target := LocalName(ex)
		dst := filepath.Join(dir, target)
		if _, err := os.Stat(src); err != nil {
			res.Missing = append(res.Missing, ex)
			continue
		}
		created, err := copyExclusive(src, dst)
		if err != nil {
			return res, fmt.Errorf("copy %s to %s: %w", ex, target, err)
		}
		if created {
			res.Created = append(res.Created, target)
		} else {
			res.Skipped = append(res.Skipped, target)
		}
	}
	return res, nil
}

func copyExclusive(src, dst string) (bool, error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return false, err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return false, err
	}
	return true, out.Close()
}
