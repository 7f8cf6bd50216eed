package http

import "strings"

// OriginPolicy is the allow-list shared by CORS and the websocket upgrader.
// An empty list or "*" allows every origin.
type OriginPolicy struct {
	any     bool
	origins map[string]struct{}
	list    []string
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			p.any = true
			continue
		}
		p.origins[o] = struct{}{}
		p.list = append(p.list, o)
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

func (p *OriginPolicy) Allowed(origin string) bool {
	if p == nil || p.any || origin == "" {
		return true
	}
	_, ok := p.origins[strings.TrimRight(origin, "/")]
	return ok
}

func (p *OriginPolicy) AllowAll() bool {
	return p == nil || p.any
}

func (p *OriginPolicy) List() []string {
	return p.list
}
