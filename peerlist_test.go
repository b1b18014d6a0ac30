// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerListInsertLookupRemove(t *testing.T) {
	client, server := newTestCnxPair(t)
	defer client.Close()
	defer server.Close()

	l := NewPeerList()
	p := NewPeer("server.example", client)
	l.Insert(p)

	got, ok := l.Lookup("server.example")
	assert.True(t, ok)
	assert.Same(t, p, got)

	l.Remove("server.example")
	_, ok = l.Lookup("server.example")
	assert.False(t, ok)
}

func TestPeerListListSnapshot(t *testing.T) {
	client1, server1 := newTestCnxPair(t)
	defer client1.Close()
	defer server1.Close()
	client2, server2 := newTestCnxPair(t)
	defer client2.Close()
	defer server2.Close()

	l := NewPeerList()
	l.Insert(NewPeer("a.example", client1))
	l.Insert(NewPeer("b.example", client2))

	all := l.List()
	assert.Len(t, all, 2)
}

func TestPeerListInsertReplacesSameID(t *testing.T) {
	client, server := newTestCnxPair(t)
	defer client.Close()
	defer server.Close()

	l := NewPeerList()
	first := NewPeer("server.example", client)
	second := NewPeer("server.example", client)
	l.Insert(first)
	l.Insert(second)

	got, ok := l.Lookup("server.example")
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Len(t, l.List(), 1)
}
