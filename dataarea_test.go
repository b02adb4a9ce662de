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
	"errors"
	"testing"
)

func TestDataAreaInsertThenRead(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertHoldingRegister(5, 999); err != nil {
		t.Fatalf("InsertHoldingRegister: %v", err)
	}
	values, err := area.ReadHoldingRegisters(5, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	if values[0] != 999 {
		t.Errorf("got %d, want 999", values[0])
	}
}

func TestDataAreaReadUnpopulatedIsIllegalDataAddress(t *testing.T) {
	area := NewDataArea()
	_, err := area.ReadHoldingRegisters(0, 1)
	if !IsIllegalDataAddress(err) {
		t.Errorf("got %v, want IllegalDataAddress", err)
	}
}

func TestDataAreaWriteRequiresInsertFirst(t *testing.T) {
	area := NewDataArea()
	err := area.WriteCoil(0, true)
	if !IsIllegalDataAddress(err) {
		t.Fatalf("WriteCoil on unpopulated address: got %v, want IllegalDataAddress", err)
	}

	if err := area.InsertCoil(0, false); err != nil {
		t.Fatalf("InsertCoil: %v", err)
	}
	if err := area.WriteCoil(0, true); err != nil {
		t.Fatalf("WriteCoil: %v", err)
	}
	values, err := area.ReadCoils(0, 1)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if !values[0] {
		t.Error("WriteCoil did not take effect")
	}
}

func TestDataAreaInsertDuplicateFails(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertHoldingRegister(0, 1); err != nil {
		t.Fatalf("InsertHoldingRegister: %v", err)
	}
	if err := area.InsertHoldingRegister(0, 2); !errors.Is(err, ErrDuplicateAddress) {
		t.Errorf("second insert at same address: got %v, want ErrDuplicateAddress", err)
	}
}

func TestDataAreaWriteCannotGrowPastCapacity(t *testing.T) {
	// A write can never create a new entry, so it can never be the path by
	// which a sequence grows past its maximum -- only Insert/Generate can
	// grow it, and both are capacity-checked.
	area := NewDataArea()
	err := area.WriteHoldingRegister(40000, 1)
	if !IsIllegalDataAddress(err) {
		t.Fatalf("WriteHoldingRegister on a never-inserted address: got %v, want IllegalDataAddress", err)
	}
	if area.HoldingRegisterCount() != 0 {
		t.Errorf("HoldingRegisterCount: got %d, want 0 (write must not create an entry)", area.HoldingRegisterCount())
	}
}

func TestDataAreaInsertCoilsCapacityCeiling(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertCoils(0, make([]bool, MaxQuantityCoils)); err != nil {
		t.Fatalf("InsertCoils at the ceiling: %v", err)
	}
	if err := area.InsertCoil(MaxQuantityCoils, true); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("InsertCoil past MaxQuantityCoils: got %v, want ErrCapacityExceeded", err)
	}
}

func TestDataAreaInsertHoldingRegistersCapacityCeiling(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertHoldingRegisters(0, make([]uint16, MaxQuantityRegisters)); err != nil {
		t.Fatalf("InsertHoldingRegisters at the ceiling: %v", err)
	}
	if err := area.InsertHoldingRegister(MaxQuantityRegisters, 1); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("InsertHoldingRegister past MaxQuantityRegisters: got %v, want ErrCapacityExceeded", err)
	}
}

func TestDataAreaWriteCoilsRequiresWholeRangePresent(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertCoils(0, make([]bool, 3)); err != nil {
		t.Fatalf("InsertCoils: %v", err)
	}
	// address 3 was never inserted, so the whole write must fail.
	err := area.WriteCoils(0, []bool{true, true, true, true})
	if !IsIllegalDataAddress(err) {
		t.Fatalf("WriteCoils beyond the populated range: got %v, want IllegalDataAddress", err)
	}
	values, err := area.ReadCoils(0, 3)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	for i, v := range values {
		if v {
			t.Errorf("coil[%d]: expected unmodified false, got true", i)
		}
	}
}

func TestDataAreaGenerateHoldingRegistersCapacityCeiling(t *testing.T) {
	area := NewDataArea()
	err := area.GenerateHoldingRegisters(0, MaxQuantityRegisters+1, GenerateZeros)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("GenerateHoldingRegisters beyond ceiling: got %v, want ErrCapacityExceeded", err)
	}
	if area.HoldingRegisterCount() != 0 {
		t.Error("a failed Generate must not have inserted a partial range")
	}
}

func TestDataAreaGenerateThenRead(t *testing.T) {
	area := NewDataArea()
	if err := area.GenerateHoldingRegisters(0, 5, GenerateIncremental); err != nil {
		t.Fatalf("GenerateHoldingRegisters: %v", err)
	}
	values, err := area.ReadHoldingRegisters(0, 5)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	for i, v := range values {
		if v != uint16(i) {
			t.Errorf("register[%d]: got %d, want %d", i, v, i)
		}
	}
}

func TestDataAreaGenerateCoilsRejectsIntegerPattern(t *testing.T) {
	area := NewDataArea()
	if err := area.GenerateCoils(0, 3, GenerateIncremental); !errors.Is(err, ErrInvalidGenerationPattern) {
		t.Errorf("GenerateCoils with Incremental: got %v, want ErrInvalidGenerationPattern", err)
	}
}

func TestDataAreaDiscreteInputWriteNotWireExposed(t *testing.T) {
	area := NewDataArea()
	if err := area.InsertDiscreteInput(0, false); err != nil {
		t.Fatalf("InsertDiscreteInput: %v", err)
	}
	// WriteDiscreteInput is a backend-only seam; it returns the raw sentinel,
	// not a *ModbusError, since no function code ever reaches it from the wire.
	if err := area.WriteDiscreteInput(1, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("WriteDiscreteInput on absent address: got %v, want ErrNotFound", err)
	}
	if err := area.WriteDiscreteInput(0, true); err != nil {
		t.Fatalf("WriteDiscreteInput: %v", err)
	}
	values, err := area.ReadDiscreteInputs(0, 1)
	if err != nil {
		t.Fatalf("ReadDiscreteInputs: %v", err)
	}
	if !values[0] {
		t.Error("WriteDiscreteInput did not take effect")
	}
}

func TestDataAreaCoilCount(t *testing.T) {
	area := NewDataArea()
	if got := area.CoilCount(); got != 0 {
		t.Fatalf("CoilCount on empty area: got %d, want 0", got)
	}
	if err := area.InsertCoils(0, make([]bool, 3)); err != nil {
		t.Fatalf("InsertCoils: %v", err)
	}
	if got := area.CoilCount(); got != 3 {
		t.Errorf("CoilCount after insert: got %d, want 3", got)
	}
}
