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

package schema

import (
	"sort"
	"sync"

	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

type mnode struct {
	name     string
	parent   *mnode
	children map[string]*mnode
	sg       bool
	aligned  bool
	schema   *MeasurementSchema
}

func newNode(parent *mnode, name string) *mnode {
	return &mnode{name: name, parent: parent, children: make(map[string]*mnode)}
}

func (n *mnode) path() metapath.PartialPath {
	var nodes []string
	for cur := n; cur != nil; cur = cur.parent {
		nodes = append(nodes, cur.name)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return metapath.New(nodes...)
}

func (n *mnode) sortedChildren() []*mnode {
	out := make([]*mnode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (n *mnode) isDevice() bool {
	for _, c := range n.children {
		if c.schema != nil {
			return true
		}
	}
	return false
}

// Timeseries is one leaf of the tree.
type Timeseries struct {
	Path    metapath.PartialPath
	Schema  MeasurementSchema
	Aligned bool
}

// Processor is the local schema view of one node: storage groups and the
// timeseries below them. It is safe for concurrent use.
type Processor struct {
	mu   sync.RWMutex
	root *mnode
}

func NewProcessor() *Processor {
	return &Processor{root: newNode(nil, metapath.Root)}
}

func checkConcrete(path metapath.PartialPath, minLen int) error {
	if path.Len() < minLen || path.Node(0) != metapath.Root || path.HasWildcard() {
		return errno.NewError(errno.IllegalPath, path.String())
	}
	return nil
}

// SetStorageGroup registers path as a storage group. Storage groups never nest.
func (p *Processor) SetStorageGroup(path metapath.PartialPath) error {
	if err := checkConcrete(path, 2); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.root
	for i := 1; i < path.Len(); i++ {
		if cur.sg {
			return errno.NewError(errno.StorageGroupAlreadySet, cur.path().String())
		}
		child, ok := cur.children[path.Node(i)]
		if !ok {
			if i == path.Len()-1 {
				child = newNode(cur, path.Node(i))
				child.sg = true
				cur.children[child.name] = child
				return nil
			}
			child = newNode(cur, path.Node(i))
			cur.children[child.name] = child
		}
		cur = child
	}
	// the node already exists: it is a storage group or lies above one
	return errno.NewError(errno.StorageGroupAlreadySet, path.String())
}

// CreateTimeseries adds one measurement below an existing storage group.
func (p *Processor) CreateTimeseries(path metapath.PartialPath, ms MeasurementSchema) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createTimeseries(path, ms, false)
}

// CreateAlignedTimeseries adds measurements sharing one device whose rows are written together.
func (p *Processor) CreateAlignedTimeseries(device metapath.PartialPath, schemas []MeasurementSchema) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range schemas {
		if err := p.createTimeseries(device.ConcatNode(schemas[i].Measurement), schemas[i], true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) createTimeseries(path metapath.PartialPath, ms MeasurementSchema, aligned bool) error {
	if err := checkConcrete(path, 3); err != nil {
		return err
	}
	cur := p.root
	underSG := false
	last := path.Len() - 1
	for i := 1; i < last; i++ {
		if cur.sg {
			underSG = true
		}
		if cur.schema != nil {
			return errno.NewError(errno.IllegalPath, path.String())
		}
		child, ok := cur.children[path.Node(i)]
		if !ok {
			if !underSG {
				return errno.NewError(errno.StorageGroupNotSet, path.String())
			}
			child = newNode(cur, path.Node(i))
			cur.children[child.name] = child
		}
		cur = child
	}
	if cur.sg {
		underSG = true
	}
	if !underSG {
		return errno.NewError(errno.StorageGroupNotSet, path.String())
	}
	if cur.schema != nil {
		return errno.NewError(errno.IllegalPath, path.String())
	}
	if _, ok := cur.children[path.Node(last)]; ok {
		return errno.NewError(errno.TimeseriesAlreadyExist, path.String())
	}
	leaf := newNode(cur, path.Node(last))
	ms.Measurement = leaf.name
	leaf.schema = &ms
	cur.children[leaf.name] = leaf
	if aligned {
		cur.aligned = true
	}
	return nil
}

// StorageGroups lists every storage group in path order.
func (p *Processor) StorageGroups() []metapath.PartialPath {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []metapath.PartialPath
	var walk func(n *mnode)
	walk = func(n *mnode) {
		if n.sg {
			out = append(out, n.path())
			return
		}
		for _, c := range n.sortedChildren() {
			walk(c)
		}
	}
	walk(p.root)
	return out
}

// StorageGroupOf returns the storage group path is under.
func (p *Processor) StorageGroupOf(path metapath.PartialPath) (metapath.PartialPath, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if path.Len() == 0 || path.Node(0) != metapath.Root {
		return metapath.PartialPath{}, errno.NewError(errno.StorageGroupNotSet, path.String())
	}
	cur := p.root
	for i := 1; i < path.Len(); i++ {
		child, ok := cur.children[path.Node(i)]
		if !ok {
			break
		}
		if child.sg {
			return path.Slice(0, i+1), nil
		}
		cur = child
	}
	return metapath.PartialPath{}, errno.NewError(errno.StorageGroupNotSet, path.String())
}

// MatchedStorageGroups returns the storage groups pattern can reach: the
// group itself or something below it may match.
func (p *Processor) MatchedStorageGroups(pattern metapath.PartialPath) []metapath.PartialPath {
	var out []metapath.PartialPath
	for _, sg := range p.StorageGroups() {
		if pattern.MatchesPrefix(sg) {
			out = append(out, sg)
		}
	}
	return out
}

// OverlappingStorageGroups also keeps storage groups below a node pattern fully matches.
func (p *Processor) OverlappingStorageGroups(pattern metapath.PartialPath) []metapath.PartialPath {
	var out []metapath.PartialPath
	for _, sg := range p.StorageGroups() {
		if pattern.Overlaps(sg) {
			out = append(out, sg)
		}
	}
	return out
}

// GroupPathByStorageGroup maps every reachable storage group to the
// rewrites of pattern that start with it.
func (p *Processor) GroupPathByStorageGroup(pattern metapath.PartialPath) map[string][]metapath.PartialPath {
	out := make(map[string][]metapath.PartialPath)
	for _, sg := range p.MatchedStorageGroups(pattern) {
		if rewritten := pattern.AlterPrefix(sg); len(rewritten) > 0 {
			out[sg.String()] = rewritten
		}
	}
	return out
}

type matchers []metapath.Matcher

func newMatchers(patterns []metapath.PartialPath) matchers {
	ms := make(matchers, len(patterns))
	for i := range patterns {
		ms[i] = patterns[i].Matcher()
	}
	return ms
}

func (ms matchers) step(node string) matchers {
	next := make(matchers, 0, len(ms))
	for _, m := range ms {
		if s := m.Step(node); s.Alive() {
			next = append(next, s)
		}
	}
	return next
}

func (ms matchers) accepts() bool {
	for _, m := range ms {
		if m.Accepts() {
			return true
		}
	}
	return false
}

// traverse visits, in depth first order, every node that is a match of or
// a prefix of a match of at least one pattern. fn returns false to skip
// the children of n.
func (p *Processor) traverse(patterns []metapath.PartialPath, fn func(n *mnode, depth int, ms matchers) bool) {
	var walk func(n *mnode, depth int, ms matchers)
	walk = func(n *mnode, depth int, ms matchers) {
		ms = ms.step(n.name)
		if len(ms) == 0 {
			return
		}
		if !fn(n, depth, ms) {
			return
		}
		for _, c := range n.sortedChildren() {
			walk(c, depth+1, ms)
		}
	}
	walk(p.root, 0, newMatchers(patterns))
}

// DevicesNum counts distinct devices matched by any of the patterns.
func (p *Processor) DevicesNum(patterns []metapath.PartialPath) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	count := 0
	p.traverse(patterns, func(n *mnode, _ int, ms matchers) bool {
		if ms.accepts() && n.isDevice() {
			count++
		}
		return true
	})
	return count
}

// TimeseriesNum counts distinct timeseries matched by any of the patterns.
func (p *Processor) TimeseriesNum(patterns []metapath.PartialPath) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	count := 0
	p.traverse(patterns, func(n *mnode, _ int, ms matchers) bool {
		if n.schema != nil && ms.accepts() {
			count++
		}
		return true
	})
	return count
}

// NodesNumInGivenLevel counts distinct nodes at depth level (root is 0)
// that any pattern can reach.
func (p *Processor) NodesNumInGivenLevel(patterns []metapath.PartialPath, level int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	count := 0
	p.traverse(patterns, func(n *mnode, depth int, _ matchers) bool {
		if depth == level {
			count++
			return false
		}
		return depth < level
	})
	return count
}

// NodesListInGivenLevel lists the nodes at depth level that pattern can
// reach and that lie on a storage group accepted by filter, either at or
// below it or above it. A nil filter accepts every storage group.
func (p *Processor) NodesListInGivenLevel(pattern metapath.PartialPath, level int, filter func(sg string) bool) []metapath.PartialPath {
	p.mu.RLock()
	defer p.mu.RUnlock()

	accepted := func(n *mnode) bool {
		return filter == nil || filter(n.path().String())
	}
	var aboveAccepted func(n *mnode) bool
	aboveAccepted = func(n *mnode) bool {
		for _, c := range n.children {
			if (c.sg && accepted(c)) || (!c.sg && aboveAccepted(c)) {
				return true
			}
		}
		return false
	}

	var out []metapath.PartialPath
	var walk func(n *mnode, depth int, ms matchers, inScope bool)
	walk = func(n *mnode, depth int, ms matchers, inScope bool) {
		ms = ms.step(n.name)
		if len(ms) == 0 {
			return
		}
		if n.sg {
			inScope = accepted(n)
			if !inScope {
				return
			}
		}
		if depth == level {
			if inScope || aboveAccepted(n) {
				out = append(out, n.path())
			}
			return
		}
		for _, c := range n.sortedChildren() {
			walk(c, depth+1, ms, inScope)
		}
	}
	walk(p.root, 0, newMatchers([]metapath.PartialPath{pattern}), false)
	return out
}

// ChildNodeNameInNextLevel returns the names of the children of every node pattern matches.
func (p *Processor) ChildNodeNameInNextLevel(pattern metapath.PartialPath) []string {
	var out []string
	p.visitChildren(pattern, func(c *mnode) {
		out = append(out, c.name)
	})
	return uniqSorted(out)
}

// ChildNodePathInNextLevel returns the full paths of the children of every node pattern matches.
func (p *Processor) ChildNodePathInNextLevel(pattern metapath.PartialPath) []string {
	var out []string
	p.visitChildren(pattern, func(c *mnode) {
		out = append(out, c.path().String())
	})
	return uniqSorted(out)
}

func (p *Processor) visitChildren(pattern metapath.PartialPath, fn func(c *mnode)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.traverse([]metapath.PartialPath{pattern}, func(n *mnode, _ int, ms matchers) bool {
		if ms.accepts() {
			for _, c := range n.children {
				fn(c)
			}
		}
		return true
	})
}

func uniqSorted(ss []string) []string {
	if len(ss) == 0 {
		return ss
	}
	sort.Strings(ss)
	j := 1
	for i := 1; i < len(ss); i++ {
		if ss[i] != ss[j-1] {
			ss[j] = ss[i]
			j++
		}
	}
	return ss[:j]
}

// SearchMeasurementSchema resolves the schemas of measurements under device, in request order.
func (p *Processor) SearchMeasurementSchema(device metapath.PartialPath, measurements []string) ([]MeasurementSchema, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := p.find(device)
	out := make([]MeasurementSchema, 0, len(measurements))
	for _, m := range measurements {
		var leaf *mnode
		if n != nil {
			leaf = n.children[m]
		}
		if leaf == nil || leaf.schema == nil {
			return nil, errno.NewError(errno.SchemaNotFound, device.String(), m)
		}
		out = append(out, *leaf.schema)
	}
	return out, nil
}

// IsAligned reports whether device was created through CreateAlignedTimeseries.
func (p *Processor) IsAligned(device metapath.PartialPath) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := p.find(device)
	return n != nil && n.aligned
}

func (p *Processor) find(path metapath.PartialPath) *mnode {
	if path.Len() == 0 || path.Node(0) != metapath.Root {
		return nil
	}
	cur := p.root
	for i := 1; i < path.Len() && cur != nil; i++ {
		cur = cur.children[path.Node(i)]
	}
	return cur
}

// replaceWith swaps in the tree of o. o must not be used afterwards.
func (p *Processor) replaceWith(o *Processor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = o.root
}

// AllTimeseries lists every timeseries in path order.
func (p *Processor) AllTimeseries() []Timeseries {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Timeseries
	var walk func(n *mnode)
	walk = func(n *mnode) {
		if n.schema != nil {
			out = append(out, Timeseries{Path: n.path(), Schema: *n.schema, Aligned: n.parent.aligned})
			return
		}
		for _, c := range n.sortedChildren() {
			walk(c)
		}
	}
	walk(p.root)
	return out
}
