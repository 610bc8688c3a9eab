package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"Friday_1.0/internal/models"
)

// LoadRecipe reads and parses a recipe definition from a YAML file.
// Only structural problems surface here; dependency and variable problems
// surface when the recipe is planned.
func LoadRecipe(path string) (*models.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}
	var recipe models.Recipe
	if err := yaml.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	if recipe.Name == "" {
		return nil, fmt.Errorf("recipe %s does not declare a name", path)
	}
	return &recipe, nil
}
