package exam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Tests []Test `yaml:"tests"`
}

// LoadCatalog reads test definitions from a YAML file.
func LoadCatalog(path string) ([]Test, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseCatalog(file)
}

func ParseCatalog(r io.Reader) ([]Test, error) {
	var catalog catalogFile
	if err := yaml.NewDecoder(r).Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	for idx := range catalog.Tests {
		if err := normalizeCatalogTest(&catalog.Tests[idx]); err != nil {
			return nil, err
		}
	}
	return catalog.Tests, nil
}

// SeedCatalog saves every test in the catalog file through the service.
func SeedCatalog(ctx context.Context, service *Service, path string) (int, error) {
	tests, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}
	for _, test := range tests {
		if err := service.SaveTest(ctx, test); err != nil {
			return 0, fmt.Errorf("save test %s: %w", test.ID, err)
		}
	}
	return len(tests), nil
}

func normalizeCatalogTest(test *Test) error {
	test.ID = strings.TrimSpace(test.ID)
	if test.ID == "" {
		return fmt.Errorf("catalog test %q has no id", test.Title)
	}
	if test.TimeLimitMinutes <= 0 {
		return fmt.Errorf("catalog test %s: time_limit_minutes must be positive", test.ID)
	}

	seen := make(map[string]struct{}, len(test.Questions))
	for idx := range test.Questions {
		question := &test.Questions[idx]
		if len(question.Options) != OptionCount {
			return fmt.Errorf("catalog test %s question %d: expected %d options, got %d", test.ID, idx+1, OptionCount, len(question.Options))
		}
		for optIdx := range question.Options {
			if question.Options[optIdx].Letter == "" {
				question.Options[optIdx].Letter = string(rune('A' + optIdx))
			}
		}

		question.Correct = NormalizeAnswer(string(question.Correct))
		if !question.Correct.IsSet() {
			return fmt.Errorf("catalog test %s question %d: correct option must be one of A-D", test.ID, idx+1)
		}
		if question.Marks <= 0 {
			question.Marks = 1
		}
		if question.ID == "" {
			question.ID = MakeQuestionID(*question)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("catalog test %s: duplicate question id %s", test.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}
