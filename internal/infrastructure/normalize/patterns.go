package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBoilerplate covers the regulatory headers and disclaimers that fund
// prospectuses stamp on every page.
var DefaultBoilerplate = []string{
	"BẢN CÁO BẠCH",
	"Trang này được để trống",
	"This page is intentionally left blank",
	"Lưu hành nội bộ",
}

type patternsFile struct {
	Boilerplate []string `yaml:"boilerplate"`
}

// LoadPatterns reads boilerplate line patterns from a YAML file. An empty
// path or a missing file falls back to the built-in defaults.
func LoadPatterns(path string) ([]string, error) {
	if path == "" {
		return DefaultBoilerplate, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBoilerplate, nil
		}
		return nil, fmt.Errorf("read patterns file: %w", err)
	}

	var file patternsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}
	if len(file.Boilerplate) == 0 {
		return DefaultBoilerplate, nil
	}
	return file.Boilerplate, nil
}
