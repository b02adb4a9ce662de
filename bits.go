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

// packBits packs values into dst LSB-first within each byte, the bit order
// used by the Modbus coil/discrete-input wire format. dst must be at least
// (len(values)+7)/8 bytes and is assumed zeroed.
func packBits(dst []byte, values []bool) {
	for i, v := range values {
		if v {
			dst[i/8] |= 1 << uint(i%8)
		}
	}
}

// unpackBits unpacks qty LSB-first bits from src, the inverse of packBits.
func unpackBits(src []byte, qty uint16) []bool {
	values := make([]bool, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = (src[i/8] & (1 << uint(i%8))) != 0
	}
	return values
}
