package cli

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// printYAML renders a value as YAML to stdout.
func printYAML(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render YAML: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
