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
	"sort"
)

// Matcher walks a concrete path node by node against a pattern.
// "*" matches exactly one node and "**" one or more.
// State j means pattern[:j] has consumed the nodes seen so far.
type Matcher struct {
	pattern []string
	states  []int
}

func (p PartialPath) Matcher() Matcher {
	return Matcher{pattern: p.nodes, states: []int{0}}
}

// Step consumes one concrete node and returns the next matcher.
func (m Matcher) Step(node string) Matcher {
	n := len(m.pattern)
	next := make([]int, 0, len(m.states)+1)
	for _, j := range m.states {
		if j > 0 && m.pattern[j-1] == MultiLevelWildcard {
			next = append(next, j)
		}
		if j < n && nodeMatches(m.pattern[j], node) {
			next = append(next, j+1)
		}
	}
	return Matcher{pattern: m.pattern, states: uniqInts(next)}
}

// Accepts reports whether the nodes consumed so far form a full match.
func (m Matcher) Accepts() bool {
	return len(m.states) > 0 && m.states[len(m.states)-1] == len(m.pattern)
}

// Alive reports whether the consumed nodes are a match or can be extended into one.
func (m Matcher) Alive() bool {
	return len(m.states) > 0
}

func nodeMatches(pattern, node string) bool {
	return pattern == OneLevelWildcard || pattern == MultiLevelWildcard || pattern == node
}

func uniqInts(s []int) []int {
	if len(s) < 2 {
		return s
	}
	sort.Ints(s)
	j := 1
	for i := 1; i < len(s); i++ {
		if s[i] != s[j-1] {
			s[j] = s[i]
			j++
		}
	}
	return s[:j]
}

func (p PartialPath) run(path PartialPath) Matcher {
	m := p.Matcher()
	for _, n := range path.nodes {
		m = m.Step(n)
		if !m.Alive() {
			break
		}
	}
	return m
}

// Matches reports whether path is matched by the pattern p.
func (p PartialPath) Matches(path PartialPath) bool {
	return p.run(path).Accepts()
}

// MatchesPrefix reports whether path is matched by p or is the prefix of some path matched by p.
func (p PartialPath) MatchesPrefix(path PartialPath) bool {
	return p.run(path).Alive()
}

// Overlaps reports whether path and p can describe related nodes: either
// MatchesPrefix holds or p already matches one of path's ancestors.
func (p PartialPath) Overlaps(path PartialPath) bool {
	m := p.Matcher()
	for _, n := range path.nodes {
		m = m.Step(n)
		if !m.Alive() {
			return false
		}
		if m.Accepts() {
			return true
		}
	}
	return m.Alive()
}

// AlterPrefix rewrites p into patterns that start with the concrete prefix.
// Their union matches exactly the paths under prefix (prefix included)
// that p matches. It returns nil when nothing under prefix can match.
func (p PartialPath) AlterPrefix(prefix PartialPath) []PartialPath {
	m := p.run(prefix)
	if !m.Alive() {
		return nil
	}
	var out []PartialPath
	seen := make(map[string]struct{})
	add := func(tail ...string) {
		cand := prefix.ConcatNodes(tail...)
		key := cand.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, cand)
	}
	for _, j := range m.states {
		add(p.nodes[j:]...)
		if j > 0 && p.nodes[j-1] == MultiLevelWildcard {
			tail := append([]string{MultiLevelWildcard}, p.nodes[j:]...)
			add(tail...)
		}
	}
	return out
}

// LevelPruned reports whether counting nodes at level under pattern is
// trivially zero. A "*" fixes the depth it occupies, so it must sit at the
// requested level. A fixed literal prefix deeper than level leaves no node.
// Scanning stops at the first "**".
func LevelPruned(pattern PartialPath, level int) bool {
	i := 0
	for ; i < len(pattern.nodes); i++ {
		n := pattern.nodes[i]
		if n == MultiLevelWildcard {
			break
		}
		if n == OneLevelWildcard {
			if level != i {
				return true
			}
			break
		}
	}
	return level < i-1
}
