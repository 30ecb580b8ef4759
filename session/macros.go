package session

// Resolver is a minimal filter.MacroResolver backed by plain session-level
// strings (§4.4/§C.5's $GSHARE/$GJS/$GLANG/$GUA macros are a session
// configuration concern, never a per-filter one).
type Resolver struct {
	Share string
	JS    string
	Lang  string
	UA    string
}

func (r Resolver) GShare() string { return r.Share }
func (r Resolver) GJS() string    { return r.JS }
func (r Resolver) GLang() string  { return r.Lang }
func (r Resolver) GUA() string    { return r.UA }
