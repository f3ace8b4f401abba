package archive

import (
	"testing"

	"github.com/ngas-archive/ngas/pkg/types"
)

func TestServerContextGating(t *testing.T) {
	ctx := NewServerContext()

	// Offline servers refuse archive requests.
	if err := ctx.BeginRequest(); err == nil {
		t.Error("BeginRequest() accepted while OFFLINE")
	}

	ctx.SetOnline()
	if ctx.State() != types.StateOnline {
		t.Errorf("State() = %s, want %s", ctx.State(), types.StateOnline)
	}
	if ctx.SubState() != types.SubStateIdle {
		t.Errorf("SubState() = %s, want %s", ctx.SubState(), types.SubStateIdle)
	}

	if err := ctx.BeginRequest(); err != nil {
		t.Fatalf("BeginRequest() error = %v", err)
	}
	if ctx.SubState() != types.SubStateBusy {
		t.Errorf("SubState() = %s during request, want %s", ctx.SubState(), types.SubStateBusy)
	}

	// BUSY still admits further requests.
	if err := ctx.BeginRequest(); err != nil {
		t.Fatalf("BeginRequest() while BUSY error = %v", err)
	}

	ctx.EndRequest()
	if ctx.SubState() != types.SubStateBusy {
		t.Error("SubState() dropped to IDLE with a request still in flight")
	}
	ctx.EndRequest()
	if ctx.SubState() != types.SubStateIdle {
		t.Errorf("SubState() = %s after all requests, want %s", ctx.SubState(), types.SubStateIdle)
	}
}
