// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting for the session API. It translates HTTP concerns
// to service operations and maps service errors to status codes without
// leaking internal detail.
package api
