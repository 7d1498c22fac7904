// Package relay implements both sides of the inference relay: the HTTP
// server that forwards conversation turns to the upstream completion API
// with a server-held credential, and the client the turn orchestrator calls.
package relay

// Turn is one conversation turn on the relay wire.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Messages []Turn `json:"messages"`
	Model    string `json:"model,omitempty"`
}
