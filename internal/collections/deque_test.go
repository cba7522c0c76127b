// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeFIFO(t *testing.T) {
	q := NewDeque[int](nil)
	for i := range 100 {
		q.PushTail(i)
	}
	require.Equal(t, 100, q.Len())
	for i := range 100 {
		got, ok := q.PopHead()
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
	_, ok := q.PopHead()
	assert.False(t, ok)
}

func TestDequeLIFO(t *testing.T) {
	q := NewDeque[string](nil)
	q.PushHead("a")
	q.PushHead("b")
	q.PushHead("c")

	got, ok := q.PopHead()
	require.True(t, ok)
	assert.Equal(t, "c", got)
	got, ok = q.PopTail()
	require.True(t, ok)
	assert.Equal(t, "a", got)
	got, ok = q.PopHead()
	require.True(t, ok)
	assert.Equal(t, "b", got)
	assert.True(t, q.IsEmpty())
}

func TestDequeMixedEndsKeepOrder(t *testing.T) {
	q := NewDeque[int](nil)
	// Interleave head and tail pushes across several growth cycles.
	for i := range 50 {
		q.PushHead(-1 - i)
		q.PushTail(i)
	}
	require.Equal(t, 100, q.Len())
	assert.Equal(t, -50, q.At(0))
	assert.Equal(t, 49, q.At(99))

	prev, _ := q.PopHead()
	for !q.IsEmpty() {
		cur, _ := q.PopHead()
		assert.Less(t, prev, cur)
		prev = cur
	}
}

func TestDequePeek(t *testing.T) {
	q := NewDeque[int](nil)
	_, ok := q.PeekHead()
	assert.False(t, ok)

	q.PushTail(1)
	q.PushTail(2)
	head, _ := q.PeekHead()
	tail, _ := q.PeekTail()
	assert.Equal(t, 1, head)
	assert.Equal(t, 2, tail)
	assert.Equal(t, 2, q.Len())
}

func TestDequeDropRunsDeleter(t *testing.T) {
	var deleted []int
	q := NewDeque(func(v int) { deleted = append(deleted, v) })
	q.PushTail(1)
	q.PushTail(2)
	q.PushTail(3)
	q.Drop()
	assert.Equal(t, []int{1, 2, 3}, deleted)
	assert.True(t, q.IsEmpty())
}

func TestTreeOrder(t *testing.T) {
	root := NewTree("root")
	a := root.AddChildValue("a")
	root.AddChildValue("b")
	a.AddChildValue("a1")

	var visited []string
	root.Walk(func(n *Tree[string]) bool {
		visited = append(visited, n.Value)
		return true
	})
	assert.Equal(t, []string{"root", "a", "a1", "b"}, visited)
	assert.Equal(t, root, a.Parent())
	assert.Nil(t, root.Parent())
}

func TestSetOperations(t *testing.T) {
	s := SetOf(3, 1, 2)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Add(3))
	assert.True(t, s.Add(4))

	other := SetOf(4, 5)
	assert.True(t, s.AddAll(other))
	assert.False(t, s.AddAll(other))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Sorted(s))

	clone := s.Clone()
	assert.True(t, clone.Equal(s))
	clone.Add(6)
	assert.False(t, clone.Equal(s))
}
