package profile

// Origin tags a change event with the path that produced it, so sync
// channels can tell their own imports apart from genuinely local edits.
type Origin string

const (
	OriginLocal   Origin = "local"
	OriginFile    Origin = "file"
	OriginNetwork Origin = "network"
)

// ChangeEvent carries the post-mutation snapshot of the collection.
type ChangeEvent struct {
	Config Config
	Origin Origin
}

// Subscribe registers a change listener. The returned cancel func must be
// called to release the subscription. Events are delivered on a buffered
// channel; a subscriber that falls behind misses events rather than
// blocking mutations.
func (m *Manager) Subscribe() (<-chan ChangeEvent, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan ChangeEvent, 16)
	m.subs[id] = ch

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish delivers the snapshot to every subscriber without blocking.
func (m *Manager) publish(ev ChangeEvent) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("change subscriber lagging, dropping event", "subscriber", id, "origin", ev.Origin)
		}
	}
}
