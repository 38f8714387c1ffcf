// Package etlconfig reads and patches the ETL tool's YAML configuration.
//
// Edits are applied to the yaml.v3 node tree rather than to decoded structs,
// so keys the server does not know about keep their order, style and
// comments across a rewrite.
package etlconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSourceID is used when the configuration names no source id.
const DefaultSourceID = "default_source"

const (
	keyExtract  = "extract"
	keyType     = "type"
	keySource   = "source"
	keySourceID = "source_id"
)

var ErrNotMapping = errors.New("config document root must be a mapping")

// Document is a loaded configuration file.
type Document struct {
	path string
	mode fs.FileMode
	root yaml.Node
}

// Load reads the configuration at path. An empty file yields an empty
// document.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	doc := &Document{path: path, mode: info.Mode().Perm()}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if doc.root.Kind == 0 {
		doc.root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	if doc.root.Kind != yaml.DocumentNode || len(doc.root.Content) == 0 || doc.root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse config %s: %w", path, ErrNotMapping)
	}
	return doc, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string {
	return d.path
}

// Extract is the decoded extract section.
type Extract struct {
	Type     string `yaml:"type"`
	Source   string `yaml:"source"`
	SourceID string `yaml:"source_id"`
}

// Extract decodes the extract section. A missing section decodes empty.
func (d *Document) Extract() (Extract, error) {
	var out Extract
	node := lookup(d.mapping(), keyExtract)
	if node == nil || isNull(node) {
		return out, nil
	}
	if err := node.Decode(&out); err != nil {
		return Extract{}, fmt.Errorf("decode extract: %w", err)
	}
	return out, nil
}

// PointAt rewrites the extract section to read source as fileType. An
// existing source_id is kept; a missing or empty one becomes
// DefaultSourceID.
func (d *Document) PointAt(fileType, source string) error {
	root := d.mapping()
	extract := lookup(root, keyExtract)
	switch {
	case extract == nil:
		extract = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = append(root.Content, stringNode(keyExtract), extract)
	case isNull(extract):
		*extract = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", HeadComment: extract.HeadComment, LineComment: extract.LineComment}
	case extract.Kind != yaml.MappingNode:
		return fmt.Errorf("config %s: %q must be a mapping", d.path, keyExtract)
	}

	setString(extract, keyType, fileType)
	setString(extract, keySource, source)
	if id := lookup(extract, keySourceID); id == nil || isNull(id) || (id.Kind == yaml.ScalarNode && id.Value == "") {
		setString(extract, keySourceID, DefaultSourceID)
	}

	return validateExtract(extract)
}

// SourceID resolves the schema key: extract.source_id, then a top-level
// source_id, then DefaultSourceID.
func (d *Document) SourceID() string {
	root := d.mapping()
	if extract := lookup(root, keyExtract); extract != nil && extract.Kind == yaml.MappingNode {
		if v := scalarValue(lookup(extract, keySourceID)); v != "" {
			return v
		}
	}
	if v := scalarValue(lookup(root, keySourceID)); v != "" {
		return v
	}
	return DefaultSourceID
}

// Bytes renders the document as YAML.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the document back to the file it was loaded from.
func (d *Document) Save() error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	mode := d.mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(d.path, data, mode); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ResolveSourceID loads path and returns its source id.
func ResolveSourceID(path string) (string, error) {
	doc, err := Load(path)
	if err != nil {
		return DefaultSourceID, err
	}
	return doc.SourceID(), nil
}

func (d *Document) mapping() *yaml.Node {
	return d.root.Content[0]
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setString(m *yaml.Node, key, value string) {
	if v := lookup(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Style = 0
		v.Content = nil
		v.Alias = nil
		v.Anchor = ""
		return
	}
	m.Content = append(m.Content, stringNode(key), stringNode(value))
}

func stringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func scalarValue(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || isNull(n) {
		return ""
	}
	return n.Value
}
