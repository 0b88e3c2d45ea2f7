package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadDocument reads a settings or catalog document. JSON is accepted as a
// subset of YAML; the top level must be a mapping.
func LoadDocument(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	doc, err := ParseDocument(b)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return doc, nil
}

func ParseDocument(b []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("empty document")
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	if doc == nil {
		return nil, errors.New("document is not a mapping")
	}
	return doc, nil
}

// LoadContract reads a contract file as the JSON body for activation. YAML
// contracts are converted.
func LoadContract(path string) (json.RawMessage, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode contract")
	}
	return b, nil
}
