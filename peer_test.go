// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerStateDefaultsNotOpen(t *testing.T) {
	client, server := newTestCnxPair(t)
	defer client.Close()
	defer server.Close()

	p := NewPeer("server.example", client)
	assert.Equal(t, PeerNotOpen, p.State())

	p.SetState(PeerOpen)
	assert.Equal(t, PeerOpen, p.State())
}

func TestPeerConstructionWiresSentReqsAndToSend(t *testing.T) {
	client, server := newTestCnxPair(t)
	defer client.Close()
	defer server.Close()

	p := NewPeer("server.example", client)
	assert.NotNil(t, p.SentReqs)
	assert.NotNil(t, p.ToSend)
	assert.Equal(t, 0, p.SentReqs.Len())
}
