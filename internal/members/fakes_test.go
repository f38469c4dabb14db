package members_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/mp-sync/internal/members"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
)

// memStore is an in-memory members.Store.
type memStore struct {
	mu        sync.Mutex
	members   map[string]members.Member
	parties   []members.Party
	provinces []members.Province
	ridings   []members.Riding
	merges    []members.MemberMerge

	pingErr   error
	saveErr   func(m *members.Member) error
	locked    bool
	importers int
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{members: make(map[string]members.Member)}
}

func (s *memStore) addProvince(name string) members.Province {
	p := members.Province{ID: uuid.New(), NameEN: name}
	s.provinces = append(s.provinces, p)
	return p
}

func (s *memStore) addRiding(externalID, name string) members.Riding {
	r := members.Riding{ID: uuid.New(), ExternalID: externalID, NameEN: name}
	s.ridings = append(s.ridings, r)
	return r
}

// put stores m as-is, bypassing validation.
func (s *memStore) put(m members.Member) members.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.members[m.ExternalID] = m
	return m
}

func (s *memStore) get(externalID string) (members.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[externalID]
	return m, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *memStore) setPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return fmt.Errorf("%w: %v", members.ErrStoreUnavailable, s.pingErr)
	}
	return nil
}

func (s *memStore) FindMemberByExternalID(_ context.Context, externalID string) (*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[externalID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) SaveMember(_ context.Context, m *members.Member) error {
	if err := members.Validate(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		if err := s.saveErr(m); err != nil {
			return err
		}
	}
	if existing, ok := s.members[m.ExternalID]; ok {
		m.ID = existing.ID
	} else if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	stored := *m
	stored.Party, stored.Province, stored.Riding = nil, nil, nil
	s.members[m.ExternalID] = stored
	return nil
}

func (s *memStore) FindOrCreateParty(_ context.Context, name string) (*members.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parties {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	p := members.Party{ID: uuid.New(), Name: name}
	s.parties = append(s.parties, p)
	return &p, nil
}

func (s *memStore) FindProvinceByName(_ context.Context, name string) (*members.Province, error) {
	for _, p := range s.provinces {
		if p.NameEN == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindRidingByExternalID(_ context.Context, externalID string) (*members.Riding, error) {
	for _, r := range s.ridings {
		if r.ExternalID == externalID {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memStore) EachMember(ctx context.Context, size int, fn func([]members.Member) error) error {
	s.mu.Lock()
	all := make([]members.Member, 0, len(s.members))
	for _, m := range s.members {
		all = append(all, m)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	for start := 0; start < len(all); start += size {
		end := min(start+size, len(all))
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) KnownExternalIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) SaveMerge(_ context.Context, target *members.Member, merges []members.MemberMerge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.members[target.ExternalID]
	stored.DateOfBirth = target.DateOfBirth
	stored.PlaceOfBirth = target.PlaceOfBirth
	stored.Wikipedia = target.Wikipedia
	stored.WikipediaRiding = target.WikipediaRiding
	stored.Facebook = target.Facebook
	stored.Twitter = target.Twitter
	stored.ImageRef = target.ImageRef
	stored.PendingImageURL = target.PendingImageURL
	s.members[target.ExternalID] = stored
	s.merges = append(s.merges, merges...)
	return nil
}

func (s *memStore) WithReconcileLock(_ context.Context, fn func(members.Store) error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return members.ErrReconcileInProgress
	}
	if s.importers > 0 {
		s.mu.Unlock()
		return members.ErrImportInProgress
	}
	s.locked = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.locked = false
		s.mu.Unlock()
	}()
	return fn(s)
}

func (s *memStore) WithImportLock(_ context.Context, fn func() error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return members.ErrReconcileInProgress
	}
	s.importers++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.importers--
		s.mu.Unlock()
	}()
	return fn()
}

func (s *memStore) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *memStore) SaveImageRef(_ context.Context, externalID, pendingURL, imageRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[externalID]
	if !ok || m.PendingImageURL != pendingURL {
		return nil
	}
	m.ImageRef = imageRef
	m.PendingImageURL = ""
	s.members[externalID] = m
	return nil
}

// fakeFetcher serves canned pages by member id.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	hook   func(id string)
	called []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (*parl.Page, error) {
	f.mu.Lock()
	f.called = append(f.called, id)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, &parl.FetchError{MemberID: id, Err: err}
	}
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	body, ok := f.pages[id]
	if !ok {
		return nil, &parl.FetchError{MemberID: id, StatusCode: 404, Status: "404 Not Found"}
	}
	return &parl.Page{MemberID: id, Body: []byte(body)}, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []members.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...members.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// profilePage renders a minimal member page.
func profilePage(externalID, name, ridingID string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if externalID != "" {
		fmt.Fprintf(&b, `<span id="ctl00_lblParlGcIdData">%s</span>`, externalID)
	}
	if name != "" {
		fmt.Fprintf(&b, `<span id="ctl00_lblMPNameData">%s</span>`, name)
	}
	if ridingID != "" {
		fmt.Fprintf(&b, `<span id="ctl00_lblConstituencyIdData">%s</span>`, ridingID)
	}
	b.WriteString(`<span id="ctl00_lblCaucusData">Conservative</span>`)
	b.WriteString("</body></html>")
	return b.String()
}

func ptr(s string) *string { return &s }
