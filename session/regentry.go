package session

import (
	"github.com/gofilt/gofilt/caps"
	"github.com/gofilt/gofilt/filter"
)

// regEntry adapts *filter.Register to caps.Entry. Register already
// carries a public Name field, so it cannot also implement Entry's
// Name() method directly - this thin wrapper is the session's job since
// session is the only package that imports both filter and caps.
type regEntry struct{ r *filter.Register }

func (e regEntry) Name() string            { return e.r.Name }
func (e regEntry) Bundles() []caps.Bundle  { return e.r.Caps }
func (e regEntry) Priority() int           { return e.r.Priority }
func (e regEntry) IsScript() bool          { return e.r.IsScript() }
func (e regEntry) IsMeta() bool            { return e.r.IsMeta() }
func (e regEntry) AllowCyclic() bool       { return e.r.AllowCyclic() }
func (e regEntry) ExplicitOnly() bool      { return e.r.ExplicitOnly() }
