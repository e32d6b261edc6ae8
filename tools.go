//go:build tools
// +build tools

// Package chat_relay pins the code generators invoked by go generate, e.g.
// mockgen for mocks/mock_contract.go, so that go.mod and go.sum track them.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
