/*
Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metapath

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tsgrid/tsgrid/lib/errno"
)

const (
	Root               = "root"
	Separator          = "."
	OneLevelWildcard   = "*"
	MultiLevelWildcard = "**"

	parseCacheSize = 4096
)

var parseCache *lru.Cache[string, PartialPath]

func init() {
	var err error
	parseCache, err = lru.New[string, PartialPath](parseCacheSize)
	if err != nil {
		panic(err)
	}
}

// PartialPath is an immutable sequence of path nodes. A node is a literal,
// "*" or "**". Quoted nodes keep their quotes.
type PartialPath struct {
	nodes []string
}

// New builds a path from already split nodes.
func New(nodes ...string) PartialPath {
	cp := make([]string, len(nodes))
	copy(cp, nodes)
	return PartialPath{nodes: cp}
}

// Parse splits s on dots outside double quotes.
func Parse(s string) (PartialPath, error) {
	if p, ok := parseCache.Get(s); ok {
		return p, nil
	}
	nodes, err := split(s)
	if err != nil {
		return PartialPath{}, err
	}
	p := PartialPath{nodes: nodes}
	parseCache.Add(s, p)
	return p, nil
}

// MustParse is Parse for literals known to be legal.
func MustParse(s string) PartialPath {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func split(s string) ([]string, error) {
	if s == "" {
		return nil, errno.NewError(errno.IllegalPath, s)
	}
	var nodes []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case '.':
			if inQuote {
				continue
			}
			if i == start {
				return nil, errno.NewError(errno.IllegalPath, s)
			}
			nodes = append(nodes, s[start:i])
			start = i + 1
		}
	}
	if inQuote || start >= len(s) {
		return nil, errno.NewError(errno.IllegalPath, s)
	}
	return append(nodes, s[start:]), nil
}

// Nodes returns a copy of the nodes.
func (p PartialPath) Nodes() []string {
	cp := make([]string, len(p.nodes))
	copy(cp, p.nodes)
	return cp
}

func (p PartialPath) Len() int {
	return len(p.nodes)
}

func (p PartialPath) IsEmpty() bool {
	return len(p.nodes) == 0
}

func (p PartialPath) Node(i int) string {
	return p.nodes[i]
}

func (p PartialPath) String() string {
	return strings.Join(p.nodes, Separator)
}

func (p PartialPath) FullPath() string {
	return p.String()
}

func (p PartialPath) ConcatNode(node string) PartialPath {
	nodes := make([]string, len(p.nodes), len(p.nodes)+1)
	copy(nodes, p.nodes)
	return PartialPath{nodes: append(nodes, node)}
}

func (p PartialPath) ConcatNodes(others ...string) PartialPath {
	nodes := make([]string, len(p.nodes), len(p.nodes)+len(others))
	copy(nodes, p.nodes)
	return PartialPath{nodes: append(nodes, others...)}
}

func (p PartialPath) ConcatPath(o PartialPath) PartialPath {
	return p.ConcatNodes(o.nodes...)
}

// Slice returns nodes [from, to).
func (p PartialPath) Slice(from, to int) PartialPath {
	return New(p.nodes[from:to]...)
}

// Device drops the last node.
func (p PartialPath) Device() PartialPath {
	if len(p.nodes) == 0 {
		return p
	}
	return p.Slice(0, len(p.nodes)-1)
}

func (p PartialPath) Measurement() string {
	if len(p.nodes) == 0 {
		return ""
	}
	return p.nodes[len(p.nodes)-1]
}

func (p PartialPath) HasWildcard() bool {
	for _, n := range p.nodes {
		if isWildcard(n) {
			return true
		}
	}
	return false
}

func (p PartialPath) EndsWithMultiLevelWildcard() bool {
	return len(p.nodes) > 0 && p.nodes[len(p.nodes)-1] == MultiLevelWildcard
}

// HasPrefix compares nodes literally, wildcards included.
func (p PartialPath) HasPrefix(prefix PartialPath) bool {
	if len(prefix.nodes) > len(p.nodes) {
		return false
	}
	for i, n := range prefix.nodes {
		if p.nodes[i] != n {
			return false
		}
	}
	return true
}

func (p PartialPath) Equal(o PartialPath) bool {
	return len(p.nodes) == len(o.nodes) && p.HasPrefix(o)
}

func isWildcard(n string) bool {
	return n == OneLevelWildcard || n == MultiLevelWildcard
}

// ParseAll parses every string, stopping at the first illegal one.
func ParseAll(ss []string) ([]PartialPath, error) {
	paths := make([]PartialPath, 0, len(ss))
	for _, s := range ss {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Strings is the inverse of ParseAll.
func Strings(paths []PartialPath) []string {
	ss := make([]string, len(paths))
	for i := range paths {
		ss[i] = paths[i].FullPath()
	}
	return ss
}
