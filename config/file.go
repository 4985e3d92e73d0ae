package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/pkg/nvpairs"
)

// FileName is the configuration file the loader looks for inside the
// configuration directory (or its profile subdirectory).
const FileName = "configuration.toml"

// DeviceEntry is one descriptor from the file's DeviceList array,
// processed at bring-up after the callback handler is live.
type DeviceEntry struct {
	Name        string
	Profile     string
	Description string
	Labels      []string
	Protocols   nvpairs.Protocols
	AutoEvents  []models.AutoEvent
}

// File is a loaded configuration file: the flat pair snapshot plus the
// structural elements the core reads directly.
type File struct {
	Path       string
	Registry   string // registry URL named in the file, if any
	Pairs      nvpairs.List
	DeviceList []DeviceEntry
}

// fileSchema is the typed shape of the structural TOML elements.
type fileSchema struct {
	Registry   string `toml:"Registry"`
	DeviceList []struct {
		Name        string                       `toml:"Name"`
		Profile     string                       `toml:"Profile"`
		Description string                       `toml:"Description"`
		Labels      []string                     `toml:"Labels"`
		Protocols   map[string]map[string]string `toml:"Protocols"`
		AutoEvents  []struct {
			Resource string `toml:"Resource"`
			Schedule string `toml:"Schedule"`
			OnChange bool   `toml:"OnChange"`
		} `toml:"AutoEvents"`
	} `toml:"DeviceList"`
}

// Load reads {confdir}/{profile?}/configuration.toml, producing the flat
// name/value snapshot and the parsed structural elements.
func Load(confdir, profile string) (*File, error) {
	dir := confdir
	if profile != "" {
		dir = filepath.Join(confdir, profile)
	}
	path := filepath.Join(dir, FileName)

	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var schema fileSchema
	if _, err := toml.DecodeFile(path, &schema); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	f := &File{
		Path:     path,
		Registry: schema.Registry,
		Pairs:    flatten(raw),
	}
	for _, d := range schema.DeviceList {
		entry := DeviceEntry{
			Name:        d.Name,
			Profile:     d.Profile,
			Description: d.Description,
			Labels:      d.Labels,
		}
		for _, pname := range sortedKeys(d.Protocols) {
			var props nvpairs.List
			for _, k := range sortedKeys(d.Protocols[pname]) {
				props = props.Add(k, d.Protocols[pname][k])
			}
			entry.Protocols = entry.Protocols.Add(pname, props)
		}
		for _, ae := range d.AutoEvents {
			entry.AutoEvents = append(entry.AutoEvents, models.AutoEvent{
				Resource: ae.Resource,
				Schedule: ae.Schedule,
				OnChange: ae.OnChange,
			})
		}
		f.DeviceList = append(f.DeviceList, entry)
	}
	return f, nil
}

// flatten walks the decoded TOML tree producing '/'-separated path keys.
// The DeviceList array is structural, not configuration, and is skipped.
func flatten(raw map[string]any) nvpairs.List {
	var pairs nvpairs.List
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for _, key := range sortedKeys(node) {
			if prefix == "" && key == "DeviceList" {
				continue
			}
			path := key
			if prefix != "" {
				path = prefix + "/" + key
			}
			switch v := node[key].(type) {
			case map[string]any:
				walk(path, v)
			case []any:
				if s, ok := stringifySlice(v); ok {
					pairs = pairs.Add(path, s)
				}
			default:
				if s, ok := stringify(v); ok {
					pairs = pairs.Add(path, s)
				}
			}
		}
	}
	walk("", raw)
	return pairs
}

// stringify renders a scalar TOML value to its flat string form.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}
}

// stringifySlice renders an array as a comma-joined string. Arrays of
// tables yield nothing.
func stringifySlice(vs []any) (string, bool) {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		s, ok := stringify(v)
		if !ok {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ","), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyEnvOverrides applies environment-sourced overrides to a flat pair
// list before it is uploaded to the registry. For each pair, the
// variable "<service>_<key>" is consulted, with '-' in the service name
// and '/' in the key both mapped to '_'.
func ApplyEnvOverrides(lookup func(string) (string, bool), serviceName string, pairs nvpairs.List) nvpairs.List {
	if lookup == nil {
		return pairs
	}
	prefix := strings.ReplaceAll(serviceName, "-", "_")
	out := pairs.Clone()
	for i, p := range out {
		env := prefix + "_" + strings.ReplaceAll(p.Name, "/", "_")
		if v, ok := lookup(env); ok && v != "" {
			out[i].Value = v
		}
	}
	return out
}
