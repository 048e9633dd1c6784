package gossip

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Peer is the engine's record of a known peer.
type Peer struct {
	// ID is a unique identifier for the peer.
	ID string `json:"id"`

	// LastContact is when a packet was last received from the peer.
	LastContact time.Time `json:"last_contact"`

	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`

	// Quality scores the peer in [0, 1] and biases peer selection.
	Quality float64 `json:"quality"`
}

// peerSet is the engine's peer table.
//
// The engine exclusively owns the peer table; the state layer never
// touches it.
type peerSet struct {
	peers map[string]*Peer

	// mu protects the above fields.
	mu sync.Mutex
}

func newPeerSet() *peerSet {
	return &peerSet{
		peers: make(map[string]*Peer),
	}
}

// Add inserts or updates the peer with the given quality. Returns whether
// the peer was newly added.
func (s *peerSet) Add(id string, quality float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer, ok := s.peers[id]; ok {
		peer.Quality = quality
		return false
	}
	s.peers[id] = &Peer{
		ID:          id,
		LastContact: time.Now(),
		Quality:     quality,
	}
	return true
}

// Remove deletes the peer. Returns whether the peer existed.
func (s *peerSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[id]; !ok {
		return false
	}
	delete(s.peers, id)
	return true
}

func (s *peerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.peers)
}

// List returns a snapshot of all peers.
func (s *peerSet) List() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]Peer, 0, len(s.peers))
	for _, peer := range s.peers {
		peers = append(peers, *peer)
	}
	return peers
}

// RecordContact records a packet received from the peer.
func (s *peerSet) RecordContact(id string, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, ok := s.peers[id]
	if !ok {
		return
	}
	peer.LastContact = time.Now()
	peer.MessagesReceived += uint64(messages)
}

// RecordSent records messages sent to the peer.
func (s *peerSet) RecordSent(id string, messages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, ok := s.peers[id]
	if !ok {
		return
	}
	peer.MessagesSent += uint64(messages)
}

// Select returns up to n peer IDs, preferring peers with a high score.
//
// The score adds random jitter (so selection stays probabilistic), a
// freshness bonus growing with the time since last contact when
// preferFresh is set, and the peer quality weighted by qualityWeight.
func (s *peerSet) Select(n int, preferFresh bool, qualityWeight float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		id    string
		score float64
	}

	now := time.Now()
	candidates := make([]scored, 0, len(s.peers))
	for _, peer := range s.peers {
		score := rand.Float64()
		if preferFresh {
			// Bonus approaches 1 as the silence since last contact
			// approaches a minute.
			silence := now.Sub(peer.LastContact).Seconds()
			if silence > 60 {
				silence = 60
			}
			score += silence / 60
		}
		score += peer.Quality * qualityWeight
		candidates = append(candidates, scored{id: peer.ID, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	selected := make([]string, 0, n)
	for _, candidate := range candidates[:n] {
		selected = append(selected, candidate.id)
	}
	return selected
}

// Random returns a single random peer ID, or false if there are no peers.
func (s *peerSet) Random() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.peers) == 0 {
		return "", false
	}
	i := rand.Intn(len(s.peers))
	for id := range s.peers {
		if i == 0 {
			return id, true
		}
		i--
	}
	return "", false
}

// Prune removes peers that have been silent for longer than timeout and
// returns their IDs.
func (s *peerSet) Prune(timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	now := time.Now()
	for id, peer := range s.peers {
		if now.Sub(peer.LastContact) > timeout {
			pruned = append(pruned, id)
			delete(s.peers, id)
		}
	}
	return pruned
}
