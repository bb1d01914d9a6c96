package steps

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is a recorded test as stored on disk.
type File struct {
	Name        string
	Description string
	BaseURL     string
	Steps       []Step
}

type fileDoc struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	BaseURL     string      `yaml:"baseUrl,omitempty"`
	Steps       []yaml.Node `yaml:"steps"`
}

// ReadFile loads and validates a test file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Unmarshal decodes a test document. Errors name the offending step.
func Unmarshal(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid test file: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("invalid test file: name is required")
	}

	f := &File{Name: doc.Name, Description: doc.Description, BaseURL: doc.BaseURL}
	for i := range doc.Steps {
		step, err := decodeStep(&doc.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		f.Steps = append(f.Steps, step)
	}
	return f, nil
}

func decodeStep(node *yaml.Node) (Step, error) {
	var head struct {
		Action Action `yaml:"action"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, err
	}
	if head.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	var (
		step Step
		err  error
	)
	switch head.Action {
	case ActionNavigate:
		step, err = decodeAs[Navigate](node)
	case ActionClick:
		step, err = decodeAs[Click](node)
	case ActionFill:
		step, err = decodeAs[Fill](node)
	case ActionPress:
		step, err = decodeAs[Press](node)
	case ActionCheck:
		step, err = decodeAs[Check](node)
	case ActionUncheck:
		step, err = decodeAs[Uncheck](node)
	case ActionHover:
		step, err = decodeAs[Hover](node)
	case ActionSelect:
		step, err = decodeAs[Select](node)
	case ActionAssertVisible:
		step, err = decodeAs[AssertVisible](node)
	case ActionAssertText:
		step, err = decodeAs[AssertText](node)
	case ActionAssertValue:
		step, err = decodeAs[AssertValue](node)
	case ActionAssertChecked:
		step, err = decodeAs[AssertChecked](node)
	case ActionAssertEnabled:
		step, err = decodeAs[AssertEnabled](node)
	case ActionAssertURL:
		step, err = decodeAs[AssertURL](node)
	case ActionAssertTitle:
		step, err = decodeAs[AssertTitle](node)
	default:
		return nil, fmt.Errorf("unsupported action %q", head.Action)
	}
	if err != nil {
		return nil, err
	}

	if t, ok := step.(Targeted); ok {
		target, err := t.StepTarget().Validate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Action(), err)
		}
		step = t.WithTarget(target)
	}
	if err := Validate(step); err != nil {
		return nil, err
	}
	return step, nil
}

func decodeAs[T Step](node *yaml.Node) (Step, error) {
	var v T
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Marshal encodes a test document with each step's action written first.
func Marshal(f *File) ([]byte, error) {
	doc := fileDoc{Name: f.Name, Description: f.Description, BaseURL: f.BaseURL}
	doc.Steps = make([]yaml.Node, 0, len(f.Steps))
	for i, step := range f.Steps {
		var n yaml.Node
		if err := n.Encode(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("step %d: unexpected yaml node kind %v", i+1, n.Kind)
		}
		head := []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "action"},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(step.Action())},
		}
		n.Content = append(head, n.Content...)
		doc.Steps = append(doc.Steps, n)
	}
	return yaml.Marshal(&doc)
}

// WriteFileAtomic replaces path with data. The bytes go to a temporary file
// in the same directory which is then renamed over path, so readers see
// either the old or the new content and never a partial write.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
