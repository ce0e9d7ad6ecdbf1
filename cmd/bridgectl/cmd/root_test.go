package cmd

import (
	"context"
	"testing"

	"github.com/Xhuk/continuitybridge/internal/dispatch"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "submit", "nodes", "dlq", "version"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestEmulatedReceiver(t *testing.T) {
	r := emulatedReceiver{name: "SAP"}

	if r.Name() != "SAP" {
		t.Errorf("Name() = %q, want %q", r.Name(), "SAP")
	}

	res := r.Send(context.Background(), dispatch.Payload{})
	if !res.Success {
		t.Error("Send() Success = false, want true for emulated receiver")
	}
	if res.Receiver != "SAP" {
		t.Errorf("Send() Receiver = %q, want %q", res.Receiver, "SAP")
	}
	if res.Timestamp.IsZero() {
		t.Error("Send() Timestamp is zero, want set")
	}
}

func TestNodesSubcommands(t *testing.T) {
	want := []string{"list", "show"}

	registered := make(map[string]bool)
	for _, c := range nodesCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("nodes subcommand %q not registered", name)
		}
	}
}
