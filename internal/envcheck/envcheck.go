// Package envcheck validates the local development environment: CMS
// variables, the package-manager lockfile and the Node.js version.
package envcheck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Issue is a field-level validation message.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string { return i.Field + ": " + i.Message }

// Result is never an error value: callers decide what Errors mean for them.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Lookup reads a variable; it mirrors os.LookupEnv.
type Lookup func(key string) (string, bool)

type Options struct {
	Dir          string
	EnvFiles     []string
	Lockfile     string
	MinNodeMajor int
	// NodeVersion returns the "vX.Y.Z" string of the active Node.js.
	NodeVersion func(ctx context.Context) (string, error)
	// Getenv overrides os.LookupEnv.
	Getenv Lookup
}

type Validator struct {
	opts     Options
	validate *validator.Validate
}

// required variables make the environment invalid when missing or malformed.
type requiredVars struct {
	ProjectID string `env:"SANITY_STUDIO_PROJECT_ID" validate:"required,sanityid"`
	Dataset   string `env:"SANITY_STUDIO_DATASET" validate:"required,sanityid"`
}

// advisory variables only produce warnings.
type advisoryVars struct {
	ReadToken string `env:"SANITY_API_READ_TOKEN" validate:"required"`
	LogLevel  string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	CI        string `env:"CI" validate:"omitempty,boolean"`
}

var sanityID = regexp.MustCompile(`^[a-z0-9][-a-z0-9_]*$`)

func New(opts Options) *Validator {
	if opts.NodeVersion == nil {
		opts.NodeVersion = NodeVersion
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	_ = v.RegisterValidation("sanityid", func(fl validator.FieldLevel) bool {
		return sanityID.MatchString(fl.Field().String())
	})
	return &Validator{opts: opts, validate: v}
}

// Validate runs every check. Valid is true when Errors is empty.
func (v *Validator) Validate(ctx context.Context) Result {
	res := Result{Errors: []Issue{}, Warnings: []Issue{}}
	get := v.lookup()

	req := requiredVars{
		ProjectID: first(get, "SANITY_STUDIO_PROJECT_ID", "NEXT_PUBLIC_SANITY_PROJECT_ID"),
		Dataset:   first(get, "SANITY_STUDIO_DATASET", "NEXT_PUBLIC_SANITY_DATASET"),
	}
	res.Errors = append(res.Errors, v.issues(req)...)

	adv := advisoryVars{
		ReadToken: first(get, "SANITY_API_READ_TOKEN"),
		LogLevel:  strings.ToLower(first(get, "LOG_LEVEL")),
		CI:        first(get, "CI"),
	}
	res.Warnings = append(res.Warnings, v.issues(adv)...)

	if v.opts.Lockfile != "" {
		if _, err := os.Stat(filepath.Join(v.opts.Dir, v.opts.Lockfile)); err != nil {
			res.Errors = append(res.Errors, Issue{Field: "lockfile", Message: v.opts.Lockfile + " not found; install dependencies first"})
		}
	}

	if v.opts.MinNodeMajor > 0 {
		raw, err := v.opts.NodeVersion(ctx)
		switch {
		case err != nil:
			res.Warnings = append(res.Warnings, Issue{Field: "node", Message: "cannot determine Node.js version: " + err.Error()})
		default:
			major, perr := ParseNodeMajor(raw)
			if perr != nil {
				res.Warnings = append(res.Warnings, Issue{Field: "node", Message: perr.Error()})
			} else if major < v.opts.MinNodeMajor {
				res.Errors = append(res.Errors, Issue{Field: "node", Message: fmt.Sprintf("Node.js %s is older than required v%d", strings.TrimSpace(raw), v.opts.MinNodeMajor)})
			}
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) issues(s any) []Issue {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Field: "env", Message: err.Error()}}
	}
	out := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Issue{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "sanityid":
		return "must start with a lowercase letter or digit and contain only a-z, 0-9, '-' or '_'"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "boolean":
		return "must be true or false"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func (v *Validator) lookup() Lookup {
	fromFiles := LoadFiles(v.opts.Dir, v.opts.EnvFiles)
	getenv := v.opts.Getenv
	if getenv == nil {
		getenv = os.LookupEnv
	}
	return func(k string) (string, bool) {
		if val, ok := getenv(k); ok {
			return val, true
		}
		val, ok := fromFiles[k]
		return val, ok
	}
}

func first(get Lookup, keys ...string) string {
	for _, k := range keys {
		if v, ok := get(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// LoadFiles reads dotenv files under dir in order; later files win and
// missing files are skipped.
func LoadFiles(dir string, files []string) map[string]string {
	out := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(filepath.Join(dir, f))
		if err != nil {
			continue
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// NodeVersion runs "node --version".
func NodeVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "node", "--version").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", errors.New("node not found on PATH")
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ParseNodeMajor extracts 20 from "v20.11.1".
func ParseNodeMajor(v string) (int, error) {
	s := strings.TrimPrefix(strings.TrimSpace(v), "v")
	head, _, _ := strings.Cut(s, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unrecognised Node.js version %q", v)
	}
	return n, nil
}
