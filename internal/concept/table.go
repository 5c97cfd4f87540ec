// 包 concept：术语到整数权重的只读映射，启动时由本体文档一次性构建
package concept

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOntology：本体文档不可读或格式非法；启动期遇到时进程不可继续
var ErrOntology = errors.New("ontology error")

// Normalize：术语归一化（小写、去首尾空白、内部空白折叠为单个空格）
func Normalize(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// Table：构建后只读，可在并发查询间共享
type Table struct {
	weights  map[string]int
	maxWords int
}

// WeightOf：返回术语权重；未收录返回 ok=false，与权重为 0 区分
func (t *Table) WeightOf(term string) (int, bool) {
	if t == nil {
		return 0, false
	}
	w, ok := t.weights[Normalize(term)]
	return w, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.weights)
}

// MaxWords：收录术语中最长的词数，供 n-gram 抽取使用
func (t *Table) MaxWords() int {
	if t == nil {
		return 0
	}
	return t.maxWords
}

// Terms：按字典序返回全部术语
func (t *Table) Terms() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.weights))
	for k := range t.weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builder：非并发安全，仅在初始化阶段使用
type Builder struct {
	weights map[string]int
}

func NewBuilder() *Builder { return &Builder{weights: make(map[string]int)} }

// Add：登记术语权重；重复术语后写覆盖先写
func (b *Builder) Add(term string, weight int) error {
	k := Normalize(term)
	if k == "" {
		return fmt.Errorf("%w: empty term (weight %d)", ErrOntology, weight)
	}
	b.weights[k] = weight
	return nil
}

// Build：生成只读表；Builder 之后的修改不影响已生成的表
func (b *Builder) Build() *Table {
	t := &Table{weights: make(map[string]int, len(b.weights))}
	for k, v := range b.weights {
		t.weights[k] = v
		if n := len(strings.Fields(k)); n > t.maxWords {
			t.maxWords = n
		}
	}
	return t
}

// FromMap：便捷构建
func FromMap(m map[string]int) (*Table, error) {
	b := NewBuilder()
	for k, v := range m {
		if err := b.Add(k, v); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
