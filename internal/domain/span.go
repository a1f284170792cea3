package domain

import (
	"context"
	"sync"
	"time"
)

type Span struct {
	Name    string `json:"name"`
	Elapsed *int64 `json:"elapsed"`
	startTs time.Time
}

type profileKey struct{}

// ContextProfileKey is where the request profile lives in a context.
var ContextProfileKey = profileKey{}

// GetProfile returns the profile stored in ctx. Callers that did not set one
// get a detached profile so timing calls never need a nil check.
func GetProfile(ctx context.Context) (profile *Profile, endProfile func()) {
	profile, ok := ctx.Value(ContextProfileKey).(*Profile)
	if !ok || profile == nil {
		return NewProfile()
	}
	return profile, profile.End
}

func NewCtxWithProfile(ctx context.Context, profile *Profile) context.Context {
	return context.WithValue(ctx, ContextProfileKey, profile)
}

// Profile is a list of spans. Appending spans is safe from several
// goroutines.
type Profile struct {
	mu      sync.Mutex
	Spans   []*Span `json:"spans"`
	TotalMs *int64  `json:"totalMs"`
	startTs time.Time
}

func (p *Profile) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TotalMs == nil {
		t := time.Since(p.startTs).Milliseconds()
		p.TotalMs = &t
	}
}

func (s *Span) End() {
	if s.Elapsed == nil {
		t := time.Since(s.startTs).Milliseconds()
		s.Elapsed = &t
	}
}

func NewProfile() (newProfile *Profile, endNewProfile func()) {
	newProfile = &Profile{
		Spans:   []*Span{},
		startTs: time.Now(),
	}
	return newProfile, newProfile.End
}

func NewSpan(name string) (*Span, func()) {
	newSpan := &Span{
		Name:    name,
		startTs: time.Now(),
	}
	return newSpan, newSpan.End
}

// StartNewSpan ends the previous span and begins a new one.
func (p *Profile) StartNewSpan(name string) (newSpan *Span, endSpan func()) {
	newSpan, endSpan = NewSpan(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Spans) > 0 {
		p.Spans[len(p.Spans)-1].End()
	}
	p.Spans = append(p.Spans, newSpan)
	return newSpan, endSpan
}
