package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir reads every *.yaml/*.yml file under dir and registers the
// templates it finds. Files are loaded in name order so collisions resolve
// deterministically. Returns the number of templates registered.
func LoadDir(registry *Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read template dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	count := 0
	for _, name := range files {
		n, err := LoadFile(registry, filepath.Join(dir, name))
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

// templateFile is the YAML shape of one template file: either a single
// template document or a list under "templates".
type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// LoadFile reads one YAML file and registers its template(s).
func LoadFile(registry *Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read template file %s: %w", path, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Templates) > 0 {
		for _, tmpl := range file.Templates {
			if err := registry.Register(tmpl); err != nil {
				return 0, fmt.Errorf("register %s from %s: %w", tmpl.Name, path, err)
			}
		}
		return len(file.Templates), nil
	}

	tmpl := &Template{}
	if err := yaml.Unmarshal(data, tmpl); err != nil {
		return 0, fmt.Errorf("parse template file %s: %w", path, err)
	}
	if err := registry.Register(tmpl); err != nil {
		return 0, fmt.Errorf("register %s from %s: %w", tmpl.Name, path, err)
	}
	return 1, nil
}
