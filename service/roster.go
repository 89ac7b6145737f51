package service

// Roster is the insertion-ordered set of named participants. Connections are
// counted separately by the broker.
type Roster struct {
	identities []string
}

// Add 加入名单，已存在则忽略
func (r *Roster) Add(identity string) bool {
	for _, id := range r.identities {
		if id == identity {
			return false
		}
	}
	r.identities = append(r.identities, identity)
	return true
}

// Remove 从名单中移除
func (r *Roster) Remove(identity string) bool {
	for i, id := range r.identities {
		if id == identity {
			r.identities = append(r.identities[:i], r.identities[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy in insertion order.
func (r *Roster) List() []string {
	out := make([]string, len(r.identities))
	copy(out, r.identities)
	return out
}
