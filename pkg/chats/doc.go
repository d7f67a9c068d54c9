// Package chats provides a provider-agnostic data model for the chat requests
// shrub sends and the replies it receives.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/shrub/pkg/chats/role]: conversation roles (system, user, assistant)
//   - [github.com/germanamz/shrub/pkg/chats/content]: content parts (answer text, reasoning text)
//   - [github.com/germanamz/shrub/pkg/chats/message]: messages composed of a role and content parts
//   - [github.com/germanamz/shrub/pkg/chats/chat]: ordered request container
//
// No provider or API code is included; adapters build on it.
package chats
