package booking

import (
	"sort"
	"sync"
	"time"
)

// Catalog owns providers and patients. It is read-mostly; the only provider
// mutation after creation is toggling IsActive.
type Catalog struct {
	mu        sync.RWMutex
	providers map[string]Provider
	patients  map[string]Patient
	now       func() time.Time
}

func NewCatalog() *Catalog {
	return &Catalog{
		providers: make(map[string]Provider),
		patients:  make(map[string]Patient),
		now:       time.Now,
	}
}

type ProviderFilter struct {
	Specialty  Specialty
	ActiveOnly bool
}

func (c *Catalog) AddProvider(p Provider) error {
	if p.ID == "" {
		return invalid("provider id is required")
	}
	if p.Name == "" {
		return invalid("provider name is required")
	}
	if !p.Specialty.Valid() {
		return invalid("unknown specialty %q", p.Specialty)
	}
	if p.ConsultationFee < 0 {
		return invalid("consultation fee must not be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.providers[p.ID]; ok {
		return invalid("provider %q already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	p.Qualifications = append([]string(nil), p.Qualifications...)
	c.providers[p.ID] = p
	return nil
}

func (c *Catalog) GetProvider(id string) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.providers[id]
	if !ok {
		return Provider{}, notFound("provider", id)
	}
	return p, nil
}

func (c *Catalog) ListProviders(f ProviderFilter) []Provider {
	c.mu.RLock()
	out := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if f.Specialty != "" && p.Specialty != f.Specialty {
			continue
		}
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) SetProviderActive(id string, active bool) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.providers[id]
	if !ok {
		return Provider{}, notFound("provider", id)
	}
	if p.IsActive != active {
		p.IsActive = active
		p.UpdatedAt = c.now()
		c.providers[id] = p
	}
	return p, nil
}

func (c *Catalog) AddPatient(p Patient) error {
	if p.ID == "" {
		return invalid("patient id is required")
	}
	if p.Name == "" {
		return invalid("patient name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.patients[p.ID]; ok {
		return invalid("patient %q already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	c.patients[p.ID] = p
	return nil
}

func (c *Catalog) GetPatient(id string) (Patient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.patients[id]
	if !ok {
		return Patient{}, notFound("patient", id)
	}
	return p, nil
}
