package syncagent

import "github.com/akinalp/agora/models"

// mergeBatch folds notifications into the local view. With authoritative
// set, serverUnread replaces the local counter afterwards; otherwise the
// counter moves by what the batch changed. OnUnreadIncrease fires at most
// once for the whole batch.
func (a *Agent) mergeBatch(batch []models.Notification, serverUnread int, authoritative bool) {
	a.mu.Lock()
	before := a.unread

	for _, n := range batch {
		existing, ok := a.notifications[n.ID]
		if !ok {
			if a.readIDs[n.ID] {
				n.IsRead = true
			}
			a.notifications[n.ID] = n
			if !n.IsRead && !authoritative {
				a.unread++
			}
			continue
		}
		// read never goes back to unread
		if n.IsRead && !existing.IsRead {
			existing.IsRead = true
			a.notifications[n.ID] = existing
			if !authoritative {
				a.unread--
			}
		}
	}

	if authoritative {
		a.unread = serverUnread
	}
	if a.unread < 0 {
		a.unread = 0
	}

	delta := a.unread - before
	unread := a.unread
	a.mu.Unlock()

	if delta > 0 && a.cfg.OnUnreadIncrease != nil {
		a.cfg.OnUnreadIncrease(delta, unread)
	}
}

// applyRead marks id read. serverChanged says the server flipped the row
// just now, which matters when the notification is not held locally: the
// counter drops once, and later reports for the same id are ignored.
func (a *Agent) applyRead(id string, serverChanged bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n, ok := a.notifications[id]; ok {
		if !n.IsRead {
			n.IsRead = true
			a.notifications[id] = n
			a.decrementLocked()
		}
		return
	}

	if a.readIDs[id] {
		return
	}
	a.readIDs[id] = true
	if serverChanged {
		a.decrementLocked()
	}
}

func (a *Agent) applyReadAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, n := range a.notifications {
		if !n.IsRead {
			n.IsRead = true
			a.notifications[id] = n
		}
	}
	a.unread = 0
}

func (a *Agent) applyDelete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.notifications[id]
	if !ok {
		return
	}
	delete(a.notifications, id)
	if !n.IsRead {
		a.decrementLocked()
	}
}

func (a *Agent) decrementLocked() {
	if a.unread > 0 {
		a.unread--
	}
}
