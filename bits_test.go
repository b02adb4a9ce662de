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
	"reflect"
	"testing"
)

func TestPackBitsLSBFirst(t *testing.T) {
	// 8 coils with only coil[0] set pack to the single byte 0x01.
	values := []bool{true, false, false, false, false, false, false, false}
	dst := make([]byte, 1)
	packBits(dst, values)
	if dst[0] != 0x01 {
		t.Errorf("expected 0x01, got 0x%02x", dst[0])
	}
}

func TestPackBitsSpansBytes(t *testing.T) {
	// 10 bits: bit 9 set (second byte, bit index 1) -> byte[1] == 0x02
	values := make([]bool, 10)
	values[9] = true
	dst := make([]byte, 2)
	packBits(dst, values)
	if dst[0] != 0x00 {
		t.Errorf("byte[0]: expected 0x00, got 0x%02x", dst[0])
	}
	if dst[1] != 0x02 {
		t.Errorf("byte[1]: expected 0x02, got 0x%02x", dst[1])
	}
}

func TestUnpackBits(t *testing.T) {
	src := []byte{0xCD, 0x01} // 1100 1101, 0000 0001
	got := unpackBits(src, 10)
	want := []bool{true, false, true, true, false, false, true, true, true, false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unpackBits: got %v, want %v", got, want)
	}
}

func TestPackUnpackBitsRoundTrip(t *testing.T) {
	for _, qty := range []uint16{1, 7, 8, 9, 16, 17, 125, 2000} {
		values := make([]bool, qty)
		for i := range values {
			values[i] = i%3 == 0
		}
		dst := make([]byte, (int(qty)+7)/8)
		packBits(dst, values)
		got := unpackBits(dst, qty)
		if !reflect.DeepEqual(got, values) {
			t.Fatalf("qty=%d: round trip mismatch: got %v, want %v", qty, got, values)
		}
	}
}

func TestPackBitsZeroValue(t *testing.T) {
	values := []bool{false, false, false, false, false, false, false, false}
	dst := make([]byte, 1)
	packBits(dst, values)
	if dst[0] != 0x00 {
		t.Errorf("expected 0x00, got 0x%02x", dst[0])
	}
}
