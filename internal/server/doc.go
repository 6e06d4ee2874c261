// Package server implements the HTTP and WebSocket surface of WanderChat.
//
// The implementation is organized into specialized files for configuration,
// logging, origin checks, routing, and HTTP handlers. The chat logic itself
// lives in the messaging and room packages; App ties them to the session
// stores and exposes both over one router.
package server
