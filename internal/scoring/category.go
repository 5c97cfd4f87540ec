package scoring

import (
	"sort"
	"strings"
)

// Categories：来源名到指标分类的映射，大小写不敏感；未命中时归入默认分类
type Categories struct {
	def   string
	bySrc map[string]string
}

// DefaultCategories：社交、开放数据两类以外的来源统一视为 rss
func DefaultCategories() Categories {
	return NewCategories("rss", map[string][]string{
		"social":   {"facebook", "twitter"},
		"opendata": {"dbpedia", "openagenda"},
	})
}

// NewCategories：category -> 来源列表；分类名按字典序处理，同一来源出现在多个分类时取排序靠后的分类
func NewCategories(def string, groups map[string][]string) Categories {
	if strings.TrimSpace(def) == "" {
		def = "rss"
	}
	c := Categories{def: strings.ToLower(def), bySrc: map[string]string{}}
	names := make([]string, 0, len(groups))
	for cat := range groups {
		names = append(names, cat)
	}
	sort.Strings(names)
	for _, cat := range names {
		for _, s := range groups[cat] {
			c.bySrc[strings.ToLower(strings.TrimSpace(s))] = strings.ToLower(cat)
		}
	}
	return c
}

// Of：返回来源所属分类
func (c Categories) Of(source string) string {
	if cat, ok := c.bySrc[strings.ToLower(strings.TrimSpace(source))]; ok {
		return cat
	}
	if c.def == "" {
		return "rss"
	}
	return c.def
}
