// 包 phrase：从事件文本中抽取候选主题短语
// 约束：返回顺序即文本中的出现顺序；重复短语保留，由评分侧按次累计
package phrase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"scouter/internal/concept"
)

// ErrSource：短语来源不可用或返回了无法解析的结果
var ErrSource = errors.New("phrase source error")

// Source：给定文本，返回有序的候选主题短语
type Source interface {
	Phrases(ctx context.Context, text string) ([]string, error)
}

// Kind：可选的短语来源（启动时由配置选择）
type Kind string

const (
	KindLexicon Kind = "lexicon"
	KindHTTP    Kind = "http"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindLexicon:
		return KindLexicon, nil
	case KindHTTP:
		return KindHTTP, nil
	default:
		return "", fmt.Errorf("unknown phrase source %q", s)
	}
}

// Lexicon：内置抽取器，在文本中查找权重表收录的 1..N 词短语
type Lexicon struct {
	table *concept.Table
}

func NewLexicon(t *concept.Table) *Lexicon { return &Lexicon{table: t} }

// Phrases：按词切分后枚举从每个位置开始的 n-gram，命中表内术语的按出现顺序输出
func (l *Lexicon) Phrases(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toks := tokenize(text)
	maxN := l.table.MaxWords()
	out := []string{}
	for i := range toks {
		for n := 1; n <= maxN && i+n <= len(toks); n++ {
			cand := strings.Join(toks[i:i+n], " ")
			if _, ok := l.table.WeightOf(cand); ok {
				out = append(out, cand)
			}
		}
	}
	return out, nil
}

// tokenize：小写后按非字母/数字字符切分；"flood/warning"、"flood-risk" 都会拆成独立的词
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
