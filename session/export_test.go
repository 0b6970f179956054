package session

// LoginVerifier returns a reader for the PKCE verifier held by the login
// attempt pending at the time of the call.
func LoginVerifier(o *Orchestrator) func() string {
	o.mu.Lock()
	attempt := o.login
	o.mu.Unlock()
	return func() string {
		o.mu.Lock()
		defer o.mu.Unlock()
		return attempt.pkce.Verifier
	}
}
