// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import "fmt"

// Direction tells who sent a frame
type Direction int

const (
	// DirectionRequest is controller -> inverter
	DirectionRequest Direction = iota
	// DirectionResponse is inverter -> controller
	DirectionResponse
)

func (d Direction) String() string {
	switch d {
	case DirectionRequest:
		return "request"
	case DirectionResponse:
		return "response"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// codeRange is an inclusive function code range
type codeRange struct {
	lo, hi uint8
}

func (r codeRange) contains(code uint8) bool {
	return code >= r.lo && code <= r.hi
}

// family is the function table of one control code
type family struct {
	name      string
	requests  codeRange
	responses codeRange
	names     map[Direction]map[uint8]string
	pairs     map[uint8]uint8 // request -> response
}

var registerFamily = family{
	name:      "Register",
	requests:  codeRange{FuncOfflineQuery, FuncReRegister},
	responses: codeRange{FuncReRegisterResponse, FuncOfflineQueryResponse},
	names: map[Direction]map[uint8]string{
		DirectionRequest: {
			FuncOfflineQuery:             "OfflineQuery",
			FuncSendRegisterAddress:      "SendRegisterAddress",
			FuncRemoveRegister:           "RemoveRegister",
			FuncReconnectRemovedInverter: "ReconnectRemovedInverter",
			FuncReRegister:               "ReRegister",
		},
		DirectionResponse: {
			FuncOfflineQueryResponse:             "OfflineQueryResponse",
			FuncSendRegisterAddressResponse:      "SendRegisterAddressResponse",
			FuncRemoveRegisterResponse:           "RemoveRegisterResponse",
			FuncReconnectRemovedInverterResponse: "ReconnectRemovedInverterResponse",
			FuncReRegisterResponse:               "ReRegisterResponse",
		},
	},
	pairs: map[uint8]uint8{
		FuncOfflineQuery:             FuncOfflineQueryResponse,
		FuncSendRegisterAddress:      FuncSendRegisterAddressResponse,
		FuncRemoveRegister:           FuncRemoveRegisterResponse,
		FuncReconnectRemovedInverter: FuncReconnectRemovedInverterResponse,
		FuncReRegister:               FuncReRegisterResponse,
	},
}

var readFamily = family{
	name:      "Read",
	requests:  codeRange{FuncReadDescription, FuncReadMasterSlaveLoggerVersion},
	responses: codeRange{FuncReadMasterSlaveLoggerVersionResponse, FuncReadDescriptionResponse},
	names: map[Direction]map[uint8]string{
		DirectionRequest: {
			FuncReadDescription:              "ReadDescription",
			FuncReadWriteDescription:         "ReadWriteDescription",
			FuncQueryNormalInfo:              "QueryNormalInfo",
			FuncQueryInverterIdInfo:          "QueryInverterIdInfo",
			FuncReadSetInfo:                  "ReadSetInfo",
			FuncReadRtcTime:                  "ReadRtcTime",
			FuncReadModelInfo:                "ReadModelInfo",
			FuncRielloFixSize:                "RielloFixSize",
			FuncPv33SlaveAInfo:               "Pv33SlaveAInfo",
			FuncPv33SlaveBInfo:               "Pv33SlaveBInfo",
			FuncReadDcCurrentInjection:       "ReadDcCurrentInjection",
			FuncReadMasterSlaveLoggerVersion: "ReadMasterSlaveLoggerVersion",
		},
		DirectionResponse: {
			FuncReadDescriptionResponse:              "ReadDescriptionResponse",
			FuncReadWriteDescriptionResponse:         "ReadWriteDescriptionResponse",
			FuncQueryNormalInfoResponse:              "QueryNormalInfoResponse",
			FuncQueryInverterIdInfoResponse:          "QueryInverterIdInfoResponse",
			FuncReadSetInfoResponse:                  "ReadSetInfoResponse",
			FuncReadRtcTimeResponse:                  "ReadRtcTimeResponse",
			FuncReadModelInfoResponse:                "ReadModelInfoResponse",
			FuncRielloFixSizeResponse:                "RielloFixSizeResponse",
			FuncPv33SlaveAInfoResponse:               "Pv33SlaveAInfoResponse",
			FuncPv33SlaveBInfoResponse:               "Pv33SlaveBInfoResponse",
			FuncReadDcCurrentInjectionResponse:       "ReadDcCurrentInjectionResponse",
			FuncReadMasterSlaveLoggerVersionResponse: "ReadMasterSlaveLoggerVersionResponse",
		},
	},
	pairs: map[uint8]uint8{
		FuncReadDescription:              FuncReadDescriptionResponse,
		FuncReadWriteDescription:         FuncReadWriteDescriptionResponse,
		FuncQueryNormalInfo:              FuncQueryNormalInfoResponse,
		FuncQueryInverterIdInfo:          FuncQueryInverterIdInfoResponse,
		FuncReadSetInfo:                  FuncReadSetInfoResponse,
		FuncReadRtcTime:                  FuncReadRtcTimeResponse,
		FuncReadModelInfo:                FuncReadModelInfoResponse,
		FuncRielloFixSize:                FuncRielloFixSizeResponse,
		FuncPv33SlaveAInfo:               FuncPv33SlaveAInfoResponse,
		FuncPv33SlaveBInfo:               FuncPv33SlaveBInfoResponse,
		FuncReadDcCurrentInjection:       FuncReadDcCurrentInjectionResponse,
		FuncReadMasterSlaveLoggerVersion: FuncReadMasterSlaveLoggerVersionResponse,
	},
}

// lookupFamily returns the function table for a control code.
// Write and Execute have no table.
func lookupFamily(control ControlCode) (*family, bool) {
	switch control {
	case ControlRegister:
		return &registerFamily, true
	case ControlRead:
		return &readFamily, true
	default:
		return nil, false
	}
}

// IsSupported reports whether function codes of control can be looked up
func IsSupported(control ControlCode) bool {
	_, ok := lookupFamily(control)
	return ok
}

// DirectionOf classifies code by the request and response ranges of its family.
// It returns false for unsupported control codes and codes outside both ranges.
func DirectionOf(control ControlCode, code uint8) (Direction, bool) {
	fam, ok := lookupFamily(control)
	if !ok {
		return 0, false
	}
	switch {
	case fam.requests.contains(code):
		return DirectionRequest, true
	case fam.responses.contains(code):
		return DirectionResponse, true
	}
	return 0, false
}

// FunctionName returns the name of code in the given direction.
// The lookup is always absent for Write and Execute frames.
func FunctionName(control ControlCode, code uint8, dir Direction) (string, bool) {
	fam, ok := lookupFamily(control)
	if !ok {
		return "", false
	}
	rng := fam.requests
	if dir == DirectionResponse {
		rng = fam.responses
	}
	if !rng.contains(code) {
		return "", false
	}
	name, ok := fam.names[dir][code]
	return name, ok
}

// ResponseFor returns the response function code paired with a request
func ResponseFor(control ControlCode, request uint8) (uint8, bool) {
	fam, ok := lookupFamily(control)
	if !ok {
		return 0, false
	}
	resp, ok := fam.pairs[request]
	return resp, ok
}

// ControlName returns the name of a control code, "Unsupported(0xNN)" otherwise
func ControlName(control ControlCode) string {
	switch control {
	case ControlRegister:
		return "Register"
	case ControlRead:
		return "Read"
	case ControlWrite:
		return "Write"
	case ControlExecute:
		return "Execute"
	default:
		return fmt.Sprintf("Unsupported(0x%02X)", uint8(control))
	}
}

func (c ControlCode) String() string {
	return ControlName(c)
}
