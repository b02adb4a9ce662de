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

import "encoding/binary"

// MaxQuantityWriteCoils is the maximum number of coils a single
// write-multiple-coils request may carry: with a PDU capped at 253 bytes and
// 6 bytes of function code, address, quantity, and byte count ahead of the
// packed coil data, 247 bytes remain. 1968 (0x07B0) is the Modbus
// write-multiple-coils ceiling; its packed byte count (246 bytes) fits
// within those 247 bytes.
const MaxQuantityWriteCoils = 1968

// ExecutePDU decodes, validates, and executes a single request PDU against
// area, returning the raw response PDU (a normal response, or an exception
// response with the function code's high bit set). It never panics: an
// internal failure while executing a well-formed request is reported as
// ExceptionServerDeviceFailure rather than propagated, since the in-memory
// DataArea has no other failure mode once validation passes.
func ExecutePDU(area *DataArea, pdu []byte) []byte {
	if len(pdu) == 0 {
		return buildExceptionPDU(0, ExceptionIllegalFunction)
	}
	fc := FunctionCode(pdu[0])

	switch fc {
	case FuncReadCoils:
		return executeReadBits(area.ReadCoils, fc, pdu, MaxQuantityCoils)
	case FuncReadDiscreteInputs:
		return executeReadBits(area.ReadDiscreteInputs, fc, pdu, MaxQuantityDiscreteInputs)
	case FuncReadHoldingRegisters:
		return executeReadWords(area.ReadHoldingRegisters, fc, pdu, MaxQuantityRegisters)
	case FuncReadInputRegisters:
		return executeReadWords(area.ReadInputRegisters, fc, pdu, MaxQuantityRegisters)
	case FuncWriteSingleCoil:
		return executeWriteSingleCoil(area, pdu)
	case FuncWriteSingleRegister:
		return executeWriteSingleRegister(area, pdu)
	case FuncWriteMultipleCoils:
		return executeWriteMultipleCoils(area, pdu)
	case FuncWriteMultipleRegisters:
		return executeWriteMultipleRegisters(area, pdu)
	default:
		return buildExceptionPDU(fc, ExceptionIllegalFunction)
	}
}

func buildExceptionPDU(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | 0x80, byte(ec)}
}

func exceptionCodeOf(err error) ExceptionCode {
	var modbusErr *ModbusError
	if e, ok := err.(*ModbusError); ok {
		modbusErr = e
	}
	if modbusErr != nil {
		return modbusErr.ExceptionCode
	}
	return ExceptionServerDeviceFailure
}

func executeReadBits(read func(addr, qty uint16) ([]bool, error), fc FunctionCode, pdu []byte, maxQty uint16) []byte {
	if len(pdu) != 5 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	if qty < 1 || qty > maxQty {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	values, err := read(addr, qty)
	if err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}
	byteCount := (len(values) + 7) / 8
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	packBits(resp[2:], values)
	return resp
}

func executeReadWords(read func(addr, qty uint16) ([]uint16, error), fc FunctionCode, pdu []byte, maxQty uint16) []byte {
	if len(pdu) != 5 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	if qty < 1 || qty > maxQty {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	values, err := read(addr, qty)
	if err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}
	resp := make([]byte, 2+len(values)*2)
	resp[0] = byte(fc)
	resp[1] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+i*2:], v)
	}
	return resp
}

func executeWriteSingleCoil(area *DataArea, pdu []byte) []byte {
	const fc = FuncWriteSingleCoil
	if len(pdu) != 5 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	raw := binary.BigEndian.Uint16(pdu[3:5])
	var value bool
	switch raw {
	case CoilOn:
		value = true
	case CoilOff:
		value = false
	default:
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if err := area.WriteCoil(addr, value); err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}

	resp := make([]byte, 5)
	copy(resp, pdu)
	return resp
}

func executeWriteSingleRegister(area *DataArea, pdu []byte) []byte {
	const fc = FuncWriteSingleRegister
	if len(pdu) != 5 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])
	if err := area.WriteHoldingRegister(addr, value); err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}

	resp := make([]byte, 5)
	copy(resp, pdu)
	return resp
}

func executeWriteMultipleCoils(area *DataArea, pdu []byte) []byte {
	const fc = FuncWriteMultipleCoils
	if len(pdu) < 6 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])
	if qty < 1 || qty > MaxQuantityWriteCoils {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	expectedBytes := (int(qty) + 7) / 8
	if byteCount != expectedBytes || len(pdu) != 6+expectedBytes {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	values := unpackBits(pdu[6:], qty)
	if err := area.WriteCoils(addr, values); err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}

func executeWriteMultipleRegisters(area *DataArea, pdu []byte) []byte {
	const fc = FuncWriteMultipleRegisters
	if len(pdu) < 6 {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])
	if qty < 1 || qty > MaxQuantityWriteRegisters {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	expectedBytes := int(qty) * 2
	if byteCount != expectedBytes || len(pdu) != 6+expectedBytes {
		return buildExceptionPDU(fc, ExceptionIllegalDataValue)
	}

	values := make([]uint16, qty)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(pdu[6+i*2:])
	}
	if err := area.WriteHoldingRegisters(addr, values); err != nil {
		return buildExceptionPDU(fc, exceptionCodeOf(err))
	}

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}
