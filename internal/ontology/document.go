// 包 ontology：读取本体文档并展开为术语权重表
// 背景：文档可以是概念列表（root/variation/children），也可以是扁平规则表（keyword: [{word, score}]）；
// YAML 与 JSON 均由 yaml.v3 解析
package ontology

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"scouter/internal/concept"
)

// Concept：顶层概念；root 与 variation 共享 score
type Concept struct {
	Root      string    `yaml:"root"`
	Score     *Weight   `yaml:"score"`
	Variation []string  `yaml:"variation"`
	Children  []Keyword `yaml:"children"`
}

// Keyword：概念下的子术语，可继续嵌套
type Keyword struct {
	Word      string    `yaml:"word"`
	Score     *Weight   `yaml:"score"`
	Variation []string  `yaml:"variation"`
	Children  []Keyword `yaml:"children"`
}

// Weight：术语分值；只接受整数标量，yaml.v3 默认会把 79.9 截断成 79
type Weight int

func (w *Weight) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
		return fmt.Errorf("%w: score %q is not an integer (line %d)", concept.ErrOntology, n.Value, n.Line)
	}
	var v int
	if err := n.Decode(&v); err != nil {
		return fmt.Errorf("%w: score %q: %v", concept.ErrOntology, n.Value, err)
	}
	*w = Weight(v)
	return nil
}

type rules struct {
	Keyword []Keyword `yaml:"keyword"`
}

// Parse：解析文档并构建权重表；任何结构错误、缺失分值或空术语都返回 concept.ErrOntology
func Parse(r io.Reader) (*concept.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", concept.ErrOntology, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("%w: empty document", concept.ErrOntology)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", concept.ErrOntology, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: unexpected document shape", concept.ErrOntology)
	}
	root := doc.Content[0]
	bld := concept.NewBuilder()
	switch root.Kind {
	case yaml.SequenceNode:
		var concepts []Concept
		if err := root.Decode(&concepts); err != nil {
			return nil, fmt.Errorf("%w: concepts: %v", concept.ErrOntology, err)
		}
		for i, c := range concepts {
			if err := addConcept(bld, c); err != nil {
				return nil, fmt.Errorf("concept %d: %w", i, err)
			}
		}
	case yaml.MappingNode:
		var rs rules
		if err := root.Decode(&rs); err != nil {
			return nil, fmt.Errorf("%w: rules: %v", concept.ErrOntology, err)
		}
		if rs.Keyword == nil {
			return nil, fmt.Errorf("%w: mapping document without keyword list", concept.ErrOntology)
		}
		for _, k := range rs.Keyword {
			if err := addKeyword(bld, k); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected top-level node", concept.ErrOntology)
	}
	return bld.Build(), nil
}

func addConcept(b *concept.Builder, c Concept) error {
	if c.Score == nil {
		return fmt.Errorf("%w: concept %q has no score", concept.ErrOntology, c.Root)
	}
	if err := b.Add(c.Root, int(*c.Score)); err != nil {
		return err
	}
	for _, v := range c.Variation {
		if err := b.Add(v, int(*c.Score)); err != nil {
			return err
		}
	}
	for _, k := range c.Children {
		if err := addKeyword(b, k); err != nil {
			return err
		}
	}
	return nil
}

func addKeyword(b *concept.Builder, k Keyword) error {
	if k.Score == nil {
		return fmt.Errorf("%w: keyword %q has no score", concept.ErrOntology, k.Word)
	}
	if err := b.Add(k.Word, int(*k.Score)); err != nil {
		return err
	}
	for _, v := range k.Variation {
		if err := b.Add(v, int(*k.Score)); err != nil {
			return err
		}
	}
	for _, c := range k.Children {
		if err := addKeyword(b, c); err != nil {
			return err
		}
	}
	return nil
}
