// Package prompts holds the prompt set of the fitness coach. The defaults are
// embedded; a prompt directory may override any key of coach.yaml.
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/fitcoach/ai/configloader"
)

//go:embed coach.yaml
var embedded embed.FS

const fileName = "coach.yaml"

// ChatPrompt is a system/human message pair.
type ChatPrompt struct {
	System string `yaml:"system"`
	Human  string `yaml:"human"`
}

// Set is the full prompt set.
type Set struct {
	Policy               string            `yaml:"policy"`
	Classifier           ChatPrompt        `yaml:"classifier"`
	Judge                ChatPrompt        `yaml:"judge"`
	Title                string            `yaml:"title"`
	FinalAnswer          string            `yaml:"final_answer"`
	Tasks                map[string]string `yaml:"tasks"`
	DetailClarifications map[string]string `yaml:"detail_clarifications"`
}

// Load reads the embedded prompt set with overrides from dir (may be empty).
func Load(dir string) (*Set, error) {
	set := &Set{}
	if err := configloader.NewLoader(dir, embedded).Overlay(fileName, set); err != nil {
		return nil, err
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Default returns the embedded prompt set.
func Default() *Set {
	set, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("embedded prompt set is invalid: %v", err))
	}
	return set
}

func (s *Set) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"policy":           s.Policy,
		"classifier.human": s.Classifier.Human,
		"judge.system":     s.Judge.System,
		"title":            s.Title,
		"final_answer":     s.FinalAnswer,
		"tasks.fallback":   s.Tasks["fallback"],
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("prompt set missing keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PolicyPrompt renders the operating context given to the model.
func (s *Set) PolicyPrompt(schema, today string) string {
	return Render(s.Policy, map[string]string{"schema": schema, "today": today})
}

// TaskTemplate returns the template of a structured task. The detail template
// is rendered for subtype; unknown task types get the generic fallback.
func (s *Set) TaskTemplate(taskType, subtype string) string {
	tmpl, ok := s.Tasks[taskType]
	if !ok || taskType == "fallback" {
		return s.Tasks["fallback"]
	}
	if taskType != "detail" {
		return tmpl
	}

	clarification, ok := s.DetailClarifications[subtype]
	if !ok || subtype == "fallback" {
		clarification = s.DetailClarifications["fallback"]
	}
	return Render(tmpl, map[string]string{"clarification": clarification, "type": subtype})
}

// Render substitutes {key} placeholders. Braces without a matching key are kept.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
