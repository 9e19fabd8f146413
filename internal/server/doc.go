// Package server hosts the Fiber HTTP service in front of the countdown page:
// the request-ID middleware, the catch-all route that hands every page request
// to the fetch handler, and the shared upstream http.Client. Admin routes live
// under /-/ and are registered by the routes subpackage; the catch-all steps
// aside for them.
package server
