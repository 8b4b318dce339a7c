// Package identity verifies identity assertions issued by an external
// provider (OIDC ID tokens such as Google's) and guards them against reuse.
//
// A Verifier has no side effects: it checks signature, issuer, audience and
// expiry, then extracts a SubjectIdentity. Enforcing single use of an
// assertion is the job of a ReplayGuard, invoked by the exchange flow.
package identity
