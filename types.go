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

// Package modbus provides a Modbus TCP client and server implementation.
package modbus

import (
	"context"
	"time"
)

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Function codes implemented by the protocol engine. Codes outside this set
// are rejected with ExceptionIllegalFunction.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// Protocol constants.
const (
	// MaxQuantityCoils is the maximum number of coils that can be read.
	// ExecutePDU caps write-multiple-coils requests lower, at MaxQuantityWriteCoils.
	MaxQuantityCoils = 2000

	// MaxQuantityDiscreteInputs is the maximum number of discrete inputs that can be read.
	MaxQuantityDiscreteInputs = 2000

	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0

	// DefaultTimeout is the default timeout for Modbus operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPort is the default Modbus TCP port.
	DefaultPort = 502
)

// Coil values for write operations.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// Request represents a Modbus request that can be encoded.
type Request interface {
	FunctionCode() FunctionCode
	Encode() ([]byte, error)
}

// Response represents a Modbus response that can be decoded.
type Response interface {
	FunctionCode() FunctionCode
	Decode(data []byte) error
}

// Transporter defines the interface for sending and receiving Modbus frames.
type Transporter interface {
	Send(ctx context.Context, unitID UnitID, pdu []byte) ([]byte, error)
	Close() error
}

// ConnectionState represents the state of a client connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
