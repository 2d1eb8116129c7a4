package sandbox

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// Person is a directory entry.
type Person struct {
	Email     string
	FirstName string
	LastName  string
}

// Directory resolves addresses against a fixed set of people and domains.
type Directory struct {
	mu      sync.RWMutex
	people  map[string]Person
	domains map[string]bool
	lookups atomic.Int64
}

var _ attendee.Directory = (*Directory)(nil)

// NewDirectory creates a directory where every address in one of domains
// exists, in addition to people added with Add.
func NewDirectory(domains ...string) *Directory {
	d := &Directory{
		people:  make(map[string]Person),
		domains: make(map[string]bool, len(domains)),
	}
	for _, domain := range domains {
		d.domains[strings.ToLower(domain)] = true
	}
	return d
}

// Add registers a person.
func (d *Directory) Add(p Person) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Email = model.NormalizeEmail(p.Email)
	d.people[p.Email] = p
}

// Lookups returns how many lookups were served.
func (d *Directory) Lookups() int64 {
	return d.lookups.Load()
}

func (d *Directory) Lookup(ctx context.Context, email string, _ model.User) (attendee.Result, error) {
	if err := ctx.Err(); err != nil {
		return attendee.Result{}, err
	}
	d.lookups.Add(1)
	email = model.NormalizeEmail(email)
	r := attendee.Result{Email: email, IsValid: true}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.people[email]; ok {
		r.Exists = true
		r.FirstName, r.LastName = p.FirstName, p.LastName
	} else if at := strings.LastIndexByte(email, '@'); at >= 0 && d.domains[email[at+1:]] {
		r.Exists = true
		r.FirstName, r.LastName = attendee.SplitName(email)
	}
	r.IsGoogleUser = r.Exists && strings.HasSuffix(email, "@gmail.com")
	return r, nil
}
