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
	"net"
	"testing"
	"time"
)

// mustInsertCoil, mustInsertHoldingRegister, mustInsertDiscreteInput, and
// mustInsertInputRegister seed a fresh DataArea for a test and fail loudly if
// the address was somehow already populated or the table is full -- neither
// should ever happen against a DataArea a test just constructed.
func mustInsertCoil(t *testing.T, area *DataArea, addr uint16, value bool) {
	t.Helper()
	if err := area.InsertCoil(addr, value); err != nil {
		t.Fatalf("InsertCoil(%d): %v", addr, err)
	}
}

func mustInsertHoldingRegister(t *testing.T, area *DataArea, addr, value uint16) {
	t.Helper()
	if err := area.InsertHoldingRegister(addr, value); err != nil {
		t.Fatalf("InsertHoldingRegister(%d): %v", addr, err)
	}
}

func mustInsertDiscreteInput(t *testing.T, area *DataArea, addr uint16, value bool) {
	t.Helper()
	if err := area.InsertDiscreteInput(addr, value); err != nil {
		t.Fatalf("InsertDiscreteInput(%d): %v", addr, err)
	}
}

func mustInsertInputRegister(t *testing.T, area *DataArea, addr, value uint16) {
	t.Helper()
	if err := area.InsertInputRegister(addr, value); err != nil {
		t.Fatalf("InsertInputRegister(%d): %v", addr, err)
	}
}

func TestNewServer(t *testing.T) {
	server := NewServer(NewDataArea())

	if server == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestServerProcessRequestReadCoils(t *testing.T) {
	area := NewDataArea()
	mustInsertCoil(t, area, 10, true)
	server := NewServer(area)

	pdu, _ := BuildReadCoilsPDU(10, 1)
	resp := server.processRequest(&Frame{PDU: pdu})

	values, err := ParseCoilsResponse(resp.PDU, 1)
	if err != nil {
		t.Fatalf("ParseCoilsResponse failed: %v", err)
	}
	if !values[0] {
		t.Error("Coil should be true")
	}
}

func TestServerProcessRequestReadRegisters(t *testing.T) {
	area := NewDataArea()
	mustInsertHoldingRegister(t, area, 100, 12345)
	server := NewServer(area)

	pdu, _ := BuildReadHoldingRegistersPDU(100, 1)
	resp := server.processRequest(&Frame{PDU: pdu})

	values, err := ParseRegistersResponse(resp.PDU, 1)
	if err != nil {
		t.Fatalf("ParseRegistersResponse failed: %v", err)
	}
	if values[0] != 12345 {
		t.Errorf("Register: expected 12345, got %d", values[0])
	}
}

func TestServerProcessRequestWriteMultipleCoils(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertCoils(20, make([]bool, 5)); err != nil {
		t.Fatalf("InsertCoils: %v", err)
	}
	server := NewServer(area)

	values := []bool{true, false, true, true, false}
	pdu, _ := BuildWriteMultipleCoilsPDU(20, values)
	resp := server.processRequest(&Frame{PDU: pdu})
	if IsExceptionResponse(resp.PDU) {
		t.Fatalf("unexpected exception: %v", ParseExceptionResponse(resp.PDU))
	}

	readPDU, _ := BuildReadCoilsPDU(20, 5)
	readResp := server.processRequest(&Frame{PDU: readPDU})
	got, err := ParseCoilsResponse(readResp.PDU, 5)
	if err != nil {
		t.Fatalf("ParseCoilsResponse failed: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Errorf("Coil[%d]: expected %v, got %v", i, v, got[i])
		}
	}
}

func TestServerProcessRequestWriteMultipleRegisters(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertHoldingRegisters(200, make([]uint16, 3)); err != nil {
		t.Fatalf("InsertHoldingRegisters: %v", err)
	}
	server := NewServer(area)

	values := []uint16{1111, 2222, 3333}
	pdu, _ := BuildWriteMultipleRegistersPDU(200, values)
	resp := server.processRequest(&Frame{PDU: pdu})
	if IsExceptionResponse(resp.PDU) {
		t.Fatalf("unexpected exception: %v", ParseExceptionResponse(resp.PDU))
	}

	readPDU, _ := BuildReadHoldingRegistersPDU(200, 3)
	readResp := server.processRequest(&Frame{PDU: readPDU})
	got, err := ParseRegistersResponse(readResp.PDU, 3)
	if err != nil {
		t.Fatalf("ParseRegistersResponse failed: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Errorf("Register[%d]: expected %d, got %d", i, v, got[i])
		}
	}
}

func TestServerProcessRequestDiscreteInputs(t *testing.T) {
	area := NewDataArea()
	mustInsertDiscreteInput(t, area, 5, true)
	mustInsertDiscreteInput(t, area, 6, true)
	mustInsertDiscreteInput(t, area, 7, false)
	server := NewServer(area)

	pdu, _ := BuildReadDiscreteInputsPDU(5, 3)
	resp := server.processRequest(&Frame{PDU: pdu})
	inputs, err := ParseCoilsResponse(resp.PDU, 3)
	if err != nil {
		t.Fatalf("ParseCoilsResponse failed: %v", err)
	}

	if !inputs[0] {
		t.Error("Input[5] should be true")
	}
	if !inputs[1] {
		t.Error("Input[6] should be true")
	}
	if inputs[2] {
		t.Error("Input[7] should be false")
	}
}

func TestServerProcessRequestInputRegisters(t *testing.T) {
	area := NewDataArea()
	mustInsertInputRegister(t, area, 10, 500)
	mustInsertInputRegister(t, area, 11, 600)
	server := NewServer(area)

	pdu, _ := BuildReadInputRegistersPDU(10, 2)
	resp := server.processRequest(&Frame{PDU: pdu})
	regs, err := ParseRegistersResponse(resp.PDU, 2)
	if err != nil {
		t.Fatalf("ParseRegistersResponse failed: %v", err)
	}

	if regs[0] != 500 {
		t.Errorf("InputRegister[10]: expected 500, got %d", regs[0])
	}
	if regs[1] != 600 {
		t.Errorf("InputRegister[11]: expected 600, got %d", regs[1])
	}
}

func TestServerProcessRequestUnsupportedFunctionCode(t *testing.T) {
	server := NewServer(NewDataArea())

	resp := server.processRequest(&Frame{PDU: []byte{0x07}})
	if !IsExceptionResponse(resp.PDU) {
		t.Fatal("expected an exception response for an out-of-scope function code")
	}
	if !IsIllegalFunction(ParseExceptionResponse(resp.PDU)) {
		t.Errorf("expected illegal function, got %v", ParseExceptionResponse(resp.PDU))
	}
}

func TestServerProcessRequestReadUnpopulatedRange(t *testing.T) {
	server := NewServer(NewDataArea())

	pdu, _ := BuildReadHoldingRegistersPDU(0, 4)
	resp := server.processRequest(&Frame{PDU: pdu})
	if !IsIllegalDataAddress(ParseExceptionResponse(resp.PDU)) {
		t.Errorf("expected illegal data address, got %v", ParseExceptionResponse(resp.PDU))
	}
}

func TestServerAddr(t *testing.T) {
	server := NewServer(NewDataArea())

	// Before listening, Addr should be nil
	if server.Addr() != nil {
		t.Error("Addr should be nil before listening")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	// Save the address before starting serve (since listener is set during Serve)
	expectedAddr := listener.Addr()

	go server.Serve(listener)
	defer server.Close()

	// Give server time to set up
	time.Sleep(10 * time.Millisecond)

	addr := server.Addr()
	if addr == nil {
		t.Error("Addr should not be nil after listening")
	} else if addr.String() != expectedAddr.String() {
		t.Errorf("Addr mismatch: expected %s, got %s", expectedAddr, addr)
	}
}
