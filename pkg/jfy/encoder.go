// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import "fmt"

// Encode builds the wire bytes of a frame
func Encode(source, destination uint8, control ControlCode, function uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayload)
	}
	return NewFrame(source, destination, control, function, payload).Bytes(), nil
}

// MustEncode is like Encode but panics on error.
// Use only when the payload length is known to be valid.
func MustEncode(source, destination uint8, control ControlCode, function uint8, payload []byte) []byte {
	data, err := Encode(source, destination, control, function, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// ReRegisterRequest builds the broadcast frame that drops stale registrations
func ReRegisterRequest() []byte {
	return MustEncode(AddressController, AddressBroadcast, ControlRegister, FuncReRegister, nil)
}

// OfflineQueryRequest builds the broadcast frame asking unregistered inverters for their serial number
func OfflineQueryRequest() []byte {
	return MustEncode(AddressController, AddressBroadcast, ControlRegister, FuncOfflineQuery, nil)
}

// SendRegisterAddressRequest assigns address to the inverter with the given raw serial number.
// Serials of MaxPayload bytes or more lose their leading bytes.
func SendRegisterAddressRequest(serial []byte, address uint8) []byte {
	payload := make([]byte, 0, len(serial)+1)
	payload = append(payload, serial...)
	payload = append(payload, address)
	if len(payload) > MaxPayload {
		payload = payload[len(payload)-MaxPayload:]
	}
	return MustEncode(AddressController, AddressBroadcast, ControlRegister, FuncSendRegisterAddress, payload)
}

// ReadRequest builds a Read family request to address
func ReadRequest(address uint8, function uint8) []byte {
	return MustEncode(AddressController, address, ControlRead, function, nil)
}

// QueryNormalInfoRequest builds the polling request for address
func QueryNormalInfoRequest(address uint8) []byte {
	return ReadRequest(address, FuncQueryNormalInfo)
}
