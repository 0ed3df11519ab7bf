package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"acu-chatbot-go/internal/model"

	"gopkg.in/yaml.v3"
)

// LoadIntents 从 YAML（或 JSON）文件读取意图表并校验。
func LoadIntents(path string) (model.IntentTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.IntentTable{}, fmt.Errorf("failed to read intents file: %w", err)
	}
	var table model.IntentTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return model.IntentTable{}, fmt.Errorf("failed to parse intents file: %w", err)
	}
	if err := ValidateIntents(table); err != nil {
		return model.IntentTable{}, err
	}
	return table, nil
}

// ValidateIntents 检查意图表，返回所有问题的合并错误。
func ValidateIntents(table model.IntentTable) error {
	var errs []error
	seen := make(map[string]bool, len(table.Intents))
	for i, intent := range table.Intents {
		name := strings.TrimSpace(intent.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("intent #%d: missing name", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("intent %q: duplicate name", name))
		}
		seen[name] = true
		if strings.TrimSpace(intent.ResponseTemplate) == "" {
			errs = append(errs, fmt.Errorf("intent %q: empty response", name))
		}
		if len(intent.Patterns) == 0 && len(intent.Examples) == 0 {
			errs = append(errs, fmt.Errorf("intent %q: needs patterns or examples", name))
		}
		for j, p := range intent.Patterns {
			if _, err := compilePattern(p); err != nil {
				errs = append(errs, fmt.Errorf("intent %q pattern %d: %w", name, j, err))
			}
		}
	}
	return errors.Join(errs...)
}
