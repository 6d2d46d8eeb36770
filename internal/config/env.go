package config

import (
	"os"
	"sort"
	"strings"
)

// Secret is a named credential harvested from the environment. Values never
// appear in logs or oracle prompts; only the name and category travel.
type Secret struct {
	Name     string
	Category string
	Value    string
}

const (
	CategoryCredential = "credential"
	CategoryUserInfo   = "user_info"
	CategoryConfig     = "config"
)

// infraVars are process plumbing, never candidate secrets.
var infraVars = map[string]bool{
	"PATH": true, "HOME": true, "SHELL": true, "TERM": true, "USER": true,
	"LANG": true, "PWD": true, "OLDPWD": true, "HOSTNAME": true, "TMPDIR": true,
	"DISPLAY": true, "EDITOR": true, "LOGNAME": true, "SHLVL": true,
}

var credentialMarkers = []string{"PASSWORD", "API_KEY", "APIKEY", "TOKEN", "SECRET", "CREDENTIAL"}
var userInfoMarkers = []string{"EMAIL", "USERNAME", "PHONE", "FIRST_NAME", "LAST_NAME", "ADDRESS"}

// HarvestSecrets scans the process environment for values the agent may
// need to fill into forms. Variables on the infra skip list and empty
// values are ignored.
func HarvestSecrets() []Secret {
	var out []Secret
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || infraVars[name] {
			continue
		}
		cat := categorize(name)
		if cat == "" {
			continue
		}
		out = append(out, Secret{Name: name, Category: cat, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func categorize(name string) string {
	upper := strings.ToUpper(name)
	for _, m := range credentialMarkers {
		if strings.Contains(upper, m) {
			return CategoryCredential
		}
	}
	for _, m := range userInfoMarkers {
		if strings.Contains(upper, m) {
			return CategoryUserInfo
		}
	}
	return ""
}

// MaskValue renders a secret value for log output. Short values are fully
// hidden; longer ones keep the first two characters.
func MaskValue(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:2] + strings.Repeat("*", len(v)-2)
}

// FindSecret returns the secret with the given name, if harvested.
func FindSecret(secrets []Secret, name string) (Secret, bool) {
	for _, s := range secrets {
		if s.Name == name {
			return s, true
		}
	}
	return Secret{}, false
}
