package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var errTrailingData = errors.New("invalid config: trailing data")

// Decode parses a config file. Files ending in .yaml/.yml are read as a
// single YAML document and re-encoded as JSON; everything then goes through
// one strict JSON decode. Unknown fields and trailing data are rejected, and
// errors inside a signal entry carry its signals[i] path.
func Decode(path string, data []byte) (*Config, error) {
	if isYAML(path) {
		jb, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = jb
	}
	var cfg Config
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, locateSignalError(data, err)
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// locateSignalError re-decodes signal entries one by one so a field error
// names the entry it came from. err is returned unchanged when no single
// entry is at fault.
func locateSignalError(data []byte, err error) error {
	if errors.Is(err, errTrailingData) {
		return err
	}
	var top struct {
		Signals []json.RawMessage `json:"signals"`
	}
	if json.Unmarshal(data, &top) != nil {
		return err
	}
	for i, raw := range top.Signals {
		var sc SignalConfig
		if serr := decodeStrict(raw, &sc); serr != nil {
			return fmt.Errorf("signals[%d]: %w", i, serr)
		}
	}
	return err
}

func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: more than one yaml document", errTrailingData)
	}
	v, err := jsonValue("", doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// jsonValue converts a decoded YAML tree into values encoding/json accepts.
// Map keys must be strings; path locates the offending key otherwise.
func jsonValue(path string, in any) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			nv, err := jsonValue(joinPath(path, k), v)
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%s: key %v must be a string", rootPath(path), k)
			}
			nv, err := jsonValue(joinPath(path, ks), v)
			if err != nil {
				return nil, err
			}
			m[ks] = nv
		}
		return m, nil
	case []any:
		for i := range x {
			nv, err := jsonValue(path+"["+strconv.Itoa(i)+"]", x[i])
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	default:
		return in, nil
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func rootPath(path string) string {
	if path == "" {
		return "config"
	}
	return path
}
