package workflow

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// PromptManager loads the instruction sets used for planning, completion
// steps and presentation. Files in Directory override the built-in ones.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	return pm.load("planner.md")
}

func (pm *PromptManager) GetStepPrompt() (string, error) {
	return pm.load("step.md")
}

func (pm *PromptManager) GetPresenterPrompt() (string, error) {
	return pm.load("presenter.md")
}

func (pm *PromptManager) load(name string) (string, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}

	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read built-in prompt %s: %w", name, err)
	}
	return string(data), nil
}
