// Package core contains the client runtime: the authenticated request
// pipeline, the error taxonomy and classifier, the retry policy, and the
// session lifecycle manager. Adapters depend on this package; core does not
// depend on any concrete transport, storage, or platform adapter.
package core
