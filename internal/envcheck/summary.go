package envcheck

import (
	"context"
	"strconv"
	"strings"
)

// Summary is the subset of the environment shown by "devctl status". Values
// that cannot be read are left at their defaults.
type Summary struct {
	ProjectID   string `json:"projectId"`
	Dataset     string `json:"dataset"`
	LogLevel    string `json:"logLevel"`
	CI          bool   `json:"ci"`
	NodeVersion string `json:"nodeVersion"`
	HasToken    bool   `json:"hasReadToken"`
}

// Summarize never fails.
func (v *Validator) Summarize(ctx context.Context) Summary {
	get := v.lookup()
	s := Summary{
		ProjectID: first(get, "SANITY_STUDIO_PROJECT_ID", "NEXT_PUBLIC_SANITY_PROJECT_ID"),
		Dataset:   first(get, "SANITY_STUDIO_DATASET", "NEXT_PUBLIC_SANITY_DATASET"),
		LogLevel:  strings.ToLower(first(get, "LOG_LEVEL")),
		HasToken:  first(get, "SANITY_API_READ_TOKEN") != "",
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if ci, err := strconv.ParseBool(first(get, "CI")); err == nil {
		s.CI = ci
	}
	if nv, err := v.opts.NodeVersion(ctx); err == nil {
		s.NodeVersion = nv
	}
	return s
}
