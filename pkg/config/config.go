// Package config loads YAML node configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRe = regexp.MustCompile(`\$\{?([a-zA-Z0-9_]+)(:[^}]*)?\}?`)

// Load loads the YAML configuration from the file at the given path into
// conf. Unknown fields are rejected.
//
// If expandEnv is true, references to ${VAR} or $VAR in the file are
// replaced with the corresponding environment variable. A default can be
// given using form ${VAR:default}.
func Load(conf interface{}, path string, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = expand(buf)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

func expand(b []byte) []byte {
	return envRe.ReplaceAllFunc(b, func(m []byte) []byte {
		groups := envRe.FindSubmatch(m)
		name := string(groups[1])
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return []byte(v)
		}
		if len(groups[2]) > 0 {
			// Strip the leading ':' from the default.
			return []byte(strings.TrimPrefix(string(groups[2]), ":"))
		}
		return nil
	})
}
