// Package session keeps one conversation state per chat: the interaction mode,
// the pending multi-step action and the admin elevation window.
package session
