// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbus

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("localhost:502")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	if client.State() != StateDisconnected {
		t.Errorf("Initial state should be Disconnected, got %v", client.State())
	}
}

func TestClientCloseSetsStateClosed(t *testing.T) {
	client, err := NewClient("localhost:502")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if client.State() != StateClosed {
		t.Errorf("State after Close: expected Closed, got %v", client.State())
	}

	// Closing twice is safe and does not change the state.
	if err := client.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if client.State() != StateClosed {
		t.Errorf("State after second Close: expected Closed, got %v", client.State())
	}
}

func TestConnectionStateString(t *testing.T) {
	cases := []struct {
		state ConnectionState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{StateClosed, "closed"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("%v.String(): got %q, want %q", int(c.state), got, c.want)
		}
	}
}

func TestClientWithOptions(t *testing.T) {
	client, err := NewClient("localhost:502",
		WithUnitID(5),
		WithTimeout(10*time.Second),
		WithAutoReconnect(true),
		WithMaxRetries(5),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	if client.unitID != 5 {
		t.Errorf("UnitID: expected 5, got %d", client.unitID)
	}
	if client.opts.timeout != 10*time.Second {
		t.Errorf("Timeout: expected 10s, got %v", client.opts.timeout)
	}
	if !client.opts.autoReconnect {
		t.Error("AutoReconnect should be true")
	}
	if client.opts.maxRetries != 5 {
		t.Errorf("MaxRetries: expected 5, got %d", client.opts.maxRetries)
	}
}

func TestClientSetUnitID(t *testing.T) {
	client, err := NewClient("localhost:502")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	client.SetUnitID(10)
	if client.unitID != 10 {
		t.Errorf("UnitID: expected 10, got %d", client.unitID)
	}
}

func TestClientConnectNotRunning(t *testing.T) {
	client, err := NewClient("localhost:59999") // Non-existent server
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	if err == nil {
		t.Error("Expected connection error")
	}
}

func TestClientMetrics(t *testing.T) {
	client, err := NewClient("localhost:502")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	metrics := client.Metrics()
	if metrics == nil {
		t.Error("Metrics should not be nil")
	}

	collected := metrics.Collect()
	if collected["requests_total"] != int64(0) {
		t.Errorf("Initial requests_total should be 0, got %v", collected["requests_total"])
	}
}

func TestClientReconnectSetsStateReconnecting(t *testing.T) {
	client, err := NewClient("127.0.0.1:59999", // nothing listens here
		WithAutoReconnect(true),
		WithReconnectBackoff(50*time.Millisecond),
		WithMaxReconnectTime(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		client.reconnect(ctx)
		close(done)
	}()

	// Poll for the Reconnecting state rather than sleeping a fixed amount,
	// since each failed Connect attempt briefly passes through Connecting
	// and Disconnected before settling back into Reconnecting.
	deadline := time.After(150 * time.Millisecond)
	sawReconnecting := false
	for !sawReconnecting {
		select {
		case <-deadline:
			t.Fatal("never observed StateReconnecting during reconnect backoff")
		case <-time.After(2 * time.Millisecond):
			if client.State() == StateReconnecting {
				sawReconnecting = true
			}
		}
	}

	<-done
}

// Integration test against an in-process server on a loopback port.
func TestClientIntegration(t *testing.T) {
	area := NewDataArea()
	mustInsertHoldingRegister(t, area, 0, 1234)
	mustInsertHoldingRegister(t, area, 1, 5678)
	mustInsertCoil(t, area, 0, true)

	// Seed the addresses the write subtests below target, since a
	// write-single/write-multiple request only ever mutates an
	// already-populated address.
	mustInsertHoldingRegister(t, area, 10, 0)
	if err := area.InsertHoldingRegisters(100, make([]uint16, 3)); err != nil {
		t.Fatalf("InsertHoldingRegisters: %v", err)
	}
	mustInsertCoil(t, area, 5, false)
	if err := area.InsertCoils(50, make([]bool, 5)); err != nil {
		t.Fatalf("InsertCoils: %v", err)
	}

	server := NewServer(area)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go server.Serve(listener)
	defer server.Close()

	addr := listener.Addr().String()

	// Create client
	client, err := NewClient(addr, WithUnitID(1))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// Connect
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Test ReadHoldingRegisters
	t.Run("ReadHoldingRegisters", func(t *testing.T) {
		regs, err := client.ReadHoldingRegisters(ctx, 0, 2)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters failed: %v", err)
		}
		if len(regs) != 2 {
			t.Errorf("Expected 2 registers, got %d", len(regs))
		}
		if regs[0] != 1234 {
			t.Errorf("Register[0]: expected 1234, got %d", regs[0])
		}
		if regs[1] != 5678 {
			t.Errorf("Register[1]: expected 5678, got %d", regs[1])
		}
	})

	// Test ReadCoils
	t.Run("ReadCoils", func(t *testing.T) {
		coils, err := client.ReadCoils(ctx, 0, 1)
		if err != nil {
			t.Fatalf("ReadCoils failed: %v", err)
		}
		if len(coils) != 1 {
			t.Errorf("Expected 1 coil, got %d", len(coils))
		}
		if !coils[0] {
			t.Error("Coil[0] should be true")
		}
	})

	// Test WriteSingleRegister
	t.Run("WriteSingleRegister", func(t *testing.T) {
		if err := client.WriteSingleRegister(ctx, 10, 9999); err != nil {
			t.Fatalf("WriteSingleRegister failed: %v", err)
		}

		regs, err := client.ReadHoldingRegisters(ctx, 10, 1)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters failed: %v", err)
		}
		if regs[0] != 9999 {
			t.Errorf("Register[10]: expected 9999, got %d", regs[0])
		}
	})

	// Test WriteSingleCoil
	t.Run("WriteSingleCoil", func(t *testing.T) {
		if err := client.WriteSingleCoil(ctx, 5, true); err != nil {
			t.Fatalf("WriteSingleCoil failed: %v", err)
		}

		coils, err := client.ReadCoils(ctx, 5, 1)
		if err != nil {
			t.Fatalf("ReadCoils failed: %v", err)
		}
		if !coils[0] {
			t.Error("Coil[5] should be true")
		}
	})

	// Test WriteMultipleRegisters
	t.Run("WriteMultipleRegisters", func(t *testing.T) {
		values := []uint16{111, 222, 333}
		if err := client.WriteMultipleRegisters(ctx, 100, values); err != nil {
			t.Fatalf("WriteMultipleRegisters failed: %v", err)
		}

		regs, err := client.ReadHoldingRegisters(ctx, 100, 3)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters failed: %v", err)
		}
		for i, v := range values {
			if regs[i] != v {
				t.Errorf("Register[%d]: expected %d, got %d", 100+i, v, regs[i])
			}
		}
	})

	// Test WriteMultipleCoils
	t.Run("WriteMultipleCoils", func(t *testing.T) {
		values := []bool{true, false, true, false, true}
		if err := client.WriteMultipleCoils(ctx, 50, values); err != nil {
			t.Fatalf("WriteMultipleCoils failed: %v", err)
		}

		coils, err := client.ReadCoils(ctx, 50, 5)
		if err != nil {
			t.Fatalf("ReadCoils failed: %v", err)
		}
		for i, v := range values {
			if coils[i] != v {
				t.Errorf("Coil[%d]: expected %v, got %v", 50+i, v, coils[i])
			}
		}
	})

	// Test that reading an unpopulated range fails as illegal data address
	t.Run("ReadUnpopulatedRange", func(t *testing.T) {
		_, err := client.ReadInputRegisters(ctx, 9000, 4)
		if !IsIllegalDataAddress(err) {
			t.Errorf("Expected illegal data address, got %v", err)
		}
	})
}
