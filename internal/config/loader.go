package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a job manifest from the provided path. The raw document is
// checked against the embedded JSON schema first, then decoded strictly,
// env-expanded and validated.
func Load(path string) (*Job, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve job path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}

	var rawDoc map[string]any
	if err := yaml.Unmarshal(raw, &rawDoc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if err := validateAgainstSchema(rawDoc); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	var doc Job
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	jobDir := filepath.Dir(absPath)
	doc.ResolvedWorkdir = resolveWorkdir(jobDir, os.ExpandEnv(doc.Job.Workdir))

	var inlineEnv map[string]string
	if len(doc.Env) > 0 {
		inlineEnv = make(map[string]string, len(doc.Env))
		for k, v := range doc.Env {
			inlineEnv[k] = os.ExpandEnv(v)
		}
	}

	var fileEnv map[string]string
	if doc.EnvFromFile != "" {
		expanded := os.ExpandEnv(doc.EnvFromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(doc.ResolvedWorkdir, expanded))
		}
		doc.EnvFromFile = expanded

		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldPath("envFromFile"), err)
		}
	}

	var merged map[string]string
	if len(fileEnv) > 0 {
		merged = make(map[string]string, len(fileEnv))
		for k, v := range fileEnv {
			merged[k] = v
		}
	}
	if len(inlineEnv) > 0 {
		if merged == nil {
			merged = make(map[string]string, len(inlineEnv))
		}
		for k, v := range inlineEnv {
			merged[k] = v
		}
	}
	doc.Env = merged

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
