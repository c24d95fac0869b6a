package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"CampusNotify/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is an in-memory Store/ServiceStore used by the engine, scheduler
// and service tests.
type fakeStore struct {
	mu             sync.Mutex
	docs           map[primitive.ObjectID]*Notification
	failDelivered  bool
	failSaveFor    map[primitive.ObjectID]bool
	deliveredCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:        make(map[primitive.ObjectID]*Notification),
		failSaveFor: make(map[primitive.ObjectID]bool),
	}
}

func cloneNotification(n *Notification) *Notification {
	c := *n
	c.Items = append([]DeliveryItem(nil), n.Items...)
	return &c
}

func (s *fakeStore) put(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	s.docs[n.ID] = cloneNotification(n)
}

func (s *fakeStore) get(id primitive.ObjectID) *Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		return cloneNotification(doc)
	}
	return nil
}

func (s *fakeStore) FindNotificationByID(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	if doc := s.get(id); doc != nil {
		return doc, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) FindDueScheduled(ctx context.Context, limit int64, now time.Time) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Notification
	for _, doc := range s.docs {
		if int64(len(due)) >= limit {
			break
		}
		if doc.Status == StatusScheduled && doc.ScheduledAt != nil && !doc.ScheduledAt.After(now) {
			due = append(due, cloneNotification(doc))
		}
	}
	return due, nil
}

func (s *fakeStore) Save(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	fail := s.failSaveFor[n.ID]
	s.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	n.UpdatedAt = time.Now()
	s.put(n)
	return nil
}

func (s *fakeStore) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.Status != from {
		return false, nil
	}
	doc.Status = to
	return true, nil
}

func (s *fakeStore) SetItemDeliveredAt(ctx context.Context, id primitive.ObjectID, userIDs []primitive.ObjectID, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveredCalls++
	if s.failDelivered {
		return errors.New("store briefly unavailable")
	}
	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	wanted := make(map[primitive.ObjectID]bool, len(userIDs))
	for _, uid := range userIDs {
		wanted[uid] = true
	}
	for i := range doc.Items {
		if wanted[doc.Items[i].UserID] {
			t := ts
			doc.Items[i].DeliveredAt = &t
		}
	}
	return nil
}

func (s *fakeStore) SetItemRead(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	for i := range doc.Items {
		if doc.Items[i].UserID == userID {
			doc.Items[i].Read = true
			t := ts
			doc.Items[i].ReadAt = &t
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, doc := range s.docs {
		for _, item := range doc.Items {
			if item.UserID == userID {
				out = append(out, cloneNotification(doc))
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListAdmin(ctx context.Context, f AdminFilter, limit int64) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, doc := range s.docs {
		if f.SenderRole != "" && doc.SenderRole != f.SenderRole {
			continue
		}
		if !f.SenderID.IsZero() && doc.SenderID != f.SenderID {
			continue
		}
		out = append(out, cloneNotification(doc))
	}
	return out, nil
}

// fakeDirectory serves user lookups from a fixed slice.
type fakeDirectory struct {
	users        []auth.User
	matchCalls   int
	failMatching bool
}

func (d *fakeDirectory) FindByID(ctx context.Context, id primitive.ObjectID) (*auth.User, error) {
	for i := range d.users {
		if d.users[i].ID == id {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]auth.User, error) {
	wanted := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []auth.User
	for _, u := range d.users {
		if wanted[u.ID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) FindMatching(ctx context.Context, f auth.Filter) ([]auth.User, error) {
	d.matchCalls++
	if d.failMatching {
		return nil, errors.New("directory unavailable")
	}
	var out []auth.User
	for _, u := range d.users {
		if matchesFilter(u, f) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) CountMatching(ctx context.Context, f auth.Filter) (int64, error) {
	users, err := d.FindMatching(ctx, f)
	if err != nil {
		return 0, err
	}
	d.matchCalls--
	return int64(len(users)), nil
}

func matchesFilter(u auth.User, f auth.Filter) bool {
	if f.ActiveOnly && !u.Active {
		return false
	}
	if len(f.Roles) > 0 && !containsString(f.Roles, u.Role) {
		return false
	}
	if len(f.Departments) > 0 && !containsString(f.Departments, u.Department) {
		return false
	}
	if len(f.Levels) > 0 && !containsInt(f.Levels, u.Level) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, i := range haystack {
		if i == needle {
			return true
		}
	}
	return false
}

// fakeConn records enqueued payloads.
type fakeConn struct {
	id       string
	userID   string
	refuse   bool
	payloads [][]byte
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }
func (c *fakeConn) Enqueue(payload []byte) bool {
	if c.refuse {
		return false
	}
	c.payloads = append(c.payloads, payload)
	return true
}

// fakeRegistry serves connection snapshots from fixed maps.
type fakeRegistry struct {
	byUser map[string][]Conn
	byRole map[string][]Conn
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byUser: make(map[string][]Conn), byRole: make(map[string][]Conn)}
}

func (r *fakeRegistry) add(userID, role string, c Conn) {
	r.byUser[userID] = append(r.byUser[userID], c)
	if role != "" {
		r.byRole[role] = append(r.byRole[role], c)
	}
}

func (r *fakeRegistry) ConnectionsFor(userID string) []Conn { return r.byUser[userID] }

func (r *fakeRegistry) ConnectionsForRole(role string) []Conn { return r.byRole[role] }

// fakeMailer records outbound emails.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []string
	batches int
}

func (m *fakeMailer) SendBatch(to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to...)
	m.batches++
	return nil
}
