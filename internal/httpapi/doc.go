// Package httpapi exposes the engine as a JSON API for a browser front end.
//
// Each browser is identified by a signed client handle kept in a cookie; the
// fingerprint attributes the browser reports travel in request headers.
// State-changing requests must carry a JSON body and echo the CSRF cookie in
// a header. Signup and login can additionally be gated by a HumanVerifier.
package httpapi
