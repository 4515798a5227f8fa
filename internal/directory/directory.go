package directory

import (
	"sort"
	"sync"

	"clearcall/internal/models"
)

// Directory caches the peer roster so inbound offers can be attributed to
// a known user. The presence service owns the data; the core only reads
// it, keyed by user id or by signaling identity (username).
type Directory struct {
	mu         sync.RWMutex
	byID       map[string]models.User
	byIdentity map[string]models.User
}

func New() *Directory {
	return &Directory{
		byID:       make(map[string]models.User),
		byIdentity: make(map[string]models.User),
	}
}

// Put inserts or replaces a roster entry.
func (d *Directory) Put(u models.User) {
	d.mu.Lock()
	d.byID[u.ID] = u
	d.byIdentity[u.Username] = u
	d.mu.Unlock()
}

// SetStatus updates the presence of one user, ignoring unknown ids.
func (d *Directory) SetStatus(id string, status models.UserStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return
	}
	u.Status = status
	d.byID[id] = u
	d.byIdentity[u.Username] = u
}

// ByID looks a user up by id.
func (d *Directory) ByID(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	return u, ok
}

// ByIdentity resolves a signaling identity (the user part of a source
// address) to a roster entry. Inbound offers without a match are dropped
// by the synchronizer.
func (d *Directory) ByIdentity(identity string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byIdentity[identity]
	return u, ok
}

// Snapshot returns the roster ordered by name, excluding exceptID.
func (d *Directory) Snapshot(exceptID string) []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]models.User, 0, len(d.byID))
	for _, u := range d.byID {
		if u.ID == exceptID {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// Authenticate matches a username/password pair against the roster.
func (d *Directory) Authenticate(username, password string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byIdentity[username]
	if !ok || u.Password == "" || u.Password != password {
		return models.User{}, false
	}
	return u, true
}
