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

import "sync"

// DataArea is the server-side register store shared by all connections to a
// unit. It holds four independent, address-sorted sequences, one per
// RegisterKind, protected by a single mutex: rather than a dense 65536-slot
// array per table, only populated addresses occupy memory, and presence is
// tracked explicitly so a read of an unpopulated address fails instead of
// silently returning a zero value.
type DataArea struct {
	mu sync.Mutex

	coils            boolSequence
	discreteInputs   boolSequence
	holdingRegisters wordSequence
	inputRegisters   wordSequence
}

// NewDataArea returns an empty DataArea. Registers must be populated via the
// Insert or Generate methods before a client can read or write them.
func NewDataArea() *DataArea {
	return &DataArea{}
}

// ReadCoils returns qty coil values starting at addr. Every address in the
// range must be populated or the read fails as a whole.
func (d *DataArea) ReadCoils(addr, qty uint16) ([]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	values, err := d.coils.getRange(addr, qty, MaxQuantityCoils)
	if err != nil {
		return nil, NewModbusError(FuncReadCoils, ExceptionIllegalDataAddress)
	}
	return values, nil
}

// ReadDiscreteInputs returns qty discrete input values starting at addr.
func (d *DataArea) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	values, err := d.discreteInputs.getRange(addr, qty, MaxQuantityDiscreteInputs)
	if err != nil {
		return nil, NewModbusError(FuncReadDiscreteInputs, ExceptionIllegalDataAddress)
	}
	return values, nil
}

// ReadHoldingRegisters returns qty holding register values starting at addr.
func (d *DataArea) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	values, err := d.holdingRegisters.getRange(addr, qty, MaxQuantityRegisters)
	if err != nil {
		return nil, NewModbusError(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)
	}
	return values, nil
}

// ReadInputRegisters returns qty input register values starting at addr.
func (d *DataArea) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	values, err := d.inputRegisters.getRange(addr, qty, MaxQuantityRegisters)
	if err != nil {
		return nil, NewModbusError(FuncReadInputRegisters, ExceptionIllegalDataAddress)
	}
	return values, nil
}

// InsertCoil adds a new coil at addr. It fails with ErrDuplicateAddress if
// addr is already populated, or ErrCapacityExceeded if the coil table is
// already at MaxQuantityCoils. Use InsertCoil to seed a DataArea; a Modbus
// write-single-coil request can only ever mutate an address already
// populated this way (see WriteCoil).
func (d *DataArea) InsertCoil(addr uint16, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coils.insert(addr, value, MaxQuantityCoils)
}

// InsertCoils adds a contiguous run of new coils starting at addr. The whole
// run is validated before any coil is inserted.
func (d *DataArea) InsertCoils(addr uint16, values []bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coils.insertRange(addr, values, MaxQuantityCoils)
}

// WriteCoil mutates an already-populated coil. It fails as
// ExceptionIllegalDataAddress if addr was never populated via InsertCoil or
// Generate.
func (d *DataArea) WriteCoil(addr uint16, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.coils.write(addr, value); err != nil {
		return NewModbusError(FuncWriteSingleCoil, ExceptionIllegalDataAddress)
	}
	return nil
}

// WriteCoils mutates a contiguous run of already-populated coils. Every
// address in the run is checked present before any coil is mutated.
func (d *DataArea) WriteCoils(addr uint16, values []bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.coils.writeRange(addr, values); err != nil {
		return NewModbusError(FuncWriteMultipleCoils, ExceptionIllegalDataAddress)
	}
	return nil
}

// InsertHoldingRegister adds a new holding register at addr.
func (d *DataArea) InsertHoldingRegister(addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.holdingRegisters.insert(addr, value, MaxQuantityRegisters)
}

// InsertHoldingRegisters adds a contiguous run of new holding registers.
func (d *DataArea) InsertHoldingRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.holdingRegisters.insertRange(addr, values, MaxQuantityRegisters)
}

// WriteHoldingRegister mutates an already-populated holding register. It
// fails as ExceptionIllegalDataAddress if addr was never populated.
func (d *DataArea) WriteHoldingRegister(addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.holdingRegisters.write(addr, value); err != nil {
		return NewModbusError(FuncWriteSingleRegister, ExceptionIllegalDataAddress)
	}
	return nil
}

// WriteHoldingRegisters mutates a contiguous run of already-populated
// holding registers. Every address in the run is checked present before any
// register is mutated.
func (d *DataArea) WriteHoldingRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.holdingRegisters.writeRange(addr, values); err != nil {
		return NewModbusError(FuncWriteMultipleRegisters, ExceptionIllegalDataAddress)
	}
	return nil
}

// InsertDiscreteInput adds a new discrete input value. Discrete inputs are
// read-only over the wire; this is how a simulated or bridged backend seeds
// sensor state into the table.
func (d *DataArea) InsertDiscreteInput(addr uint16, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discreteInputs.insert(addr, value, MaxQuantityDiscreteInputs)
}

// InsertDiscreteInputs adds a contiguous run of new discrete inputs.
func (d *DataArea) InsertDiscreteInputs(addr uint16, values []bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discreteInputs.insertRange(addr, values, MaxQuantityDiscreteInputs)
}

// WriteDiscreteInput mutates an already-populated discrete input. Not
// reachable from the wire (no function code writes discrete inputs); exposed
// for a simulated backend updating previously-seeded sensor state.
func (d *DataArea) WriteDiscreteInput(addr uint16, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discreteInputs.write(addr, value)
}

// InsertInputRegister adds a new input register value.
func (d *DataArea) InsertInputRegister(addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputRegisters.insert(addr, value, MaxQuantityRegisters)
}

// InsertInputRegisters adds a contiguous run of new input registers.
func (d *DataArea) InsertInputRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputRegisters.insertRange(addr, values, MaxQuantityRegisters)
}

// WriteInputRegister mutates an already-populated input register. Not
// reachable from the wire; exposed for a simulated backend updating
// previously-seeded sensor state.
func (d *DataArea) WriteInputRegister(addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputRegisters.write(addr, value)
}

// GenerateCoils fills count coils starting at addr with synthetic values.
// Only Zeros, Ones, and Random apply to boolean tables. Fails with
// ErrCapacityExceeded if count exceeds MaxQuantityCoils or the table's
// remaining room.
func (d *DataArea) GenerateCoils(addr, count uint16, genType ValueGenerationType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return generateBools(&d.coils, addr, count, genType, MaxQuantityCoils)
}

// GenerateDiscreteInputs fills count discrete inputs starting at addr.
func (d *DataArea) GenerateDiscreteInputs(addr, count uint16, genType ValueGenerationType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return generateBools(&d.discreteInputs, addr, count, genType, MaxQuantityDiscreteInputs)
}

// GenerateHoldingRegisters fills count holding registers starting at addr.
func (d *DataArea) GenerateHoldingRegisters(addr, count uint16, genType ValueGenerationType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return generateWords(&d.holdingRegisters, addr, count, genType, MaxQuantityRegisters)
}

// GenerateInputRegisters fills count input registers starting at addr.
func (d *DataArea) GenerateInputRegisters(addr, count uint16, genType ValueGenerationType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return generateWords(&d.inputRegisters, addr, count, genType, MaxQuantityRegisters)
}

// CoilCount returns the number of populated coil addresses, for diagnostics
// and tests.
func (d *DataArea) CoilCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.coils.entries)
}

// HoldingRegisterCount returns the number of populated holding register
// addresses.
func (d *DataArea) HoldingRegisterCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.holdingRegisters.entries)
}
