package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SaveToFile writes the snapshot as JSON (for .json files) or YAML (everything else).
// Transcripts are only ever exported; nothing reads them back into a Session.
func (s Snapshot) SaveToFile(filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "could not create directory for %s", filename)
		}
	}

	var (
		b   []byte
		err error
	)
	if strings.HasSuffix(filename, ".json") {
		b, err = json.MarshalIndent(s, "", "  ")
	} else {
		b, err = s.MarshalYAMLDocument()
	}
	if err != nil {
		return errors.Wrap(err, "could not serialize transcript")
	}

	return errors.Wrapf(os.WriteFile(filename, b, 0o644), "could not write %s", filename)
}

// MarshalYAMLDocument renders the snapshot as YAML, keeping filters in backend order.
func (s Snapshot) MarshalYAMLDocument() ([]byte, error) {
	doc := &yaml.Node{}
	if err := doc.Encode(s); err != nil {
		return nil, err
	}

	messages := lookupMapping(doc, "messages")
	if messages != nil {
		for i, m := range s.Messages {
			if i >= len(messages.Content) {
				break
			}
			sources := lookupMapping(messages.Content[i], "sources")
			if sources == nil {
				continue
			}
			for j, c := range m.Sources {
				if j >= len(sources.Content) || c.FiltersApplied == nil {
					continue
				}
				node, err := filtersNode(c.FiltersApplied)
				if err != nil {
					return nil, err
				}
				sources.Content[j].Content = append(sources.Content[j].Content,
					&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "filters_applied"},
					node,
				)
			}
		}
	}

	return yaml.Marshal(doc)
}

func filtersNode(f *Filters) (*yaml.Node, error) {
	ret := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		v := &yaml.Node{}
		if err := v.Encode(pair.Value); err != nil {
			return nil, err
		}
		ret.Content = append(ret.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Key},
			v,
		)
	}
	return ret, nil
}

func lookupMapping(n *yaml.Node, key string) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
