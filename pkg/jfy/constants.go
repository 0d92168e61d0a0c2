// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

// Framing
const (
	HeaderByte    = 0xA5
	TrailerByte1  = 0x0A
	TrailerByte2  = 0x0D
	HeaderSize    = 7 // header(2) + src + dst + ctrl + func + len
	ChecksumSize  = 2
	TrailerSize   = 2
	Overhead      = HeaderSize + ChecksumSize + TrailerSize
	MaxPayload    = 255
	MaxFrameSize  = Overhead + MaxPayload
	lengthOffset  = 6
	payloadOffset = HeaderSize
)

// Addresses
const (
	AddressBroadcast  = 0x00
	AddressController = 0x01
	AddressFirst      = 0x02 // first address handed out to an inverter
	AddressLast       = 0xFD // 253
)

// AckByte is the first payload byte of a positive SendRegisterAddress reply
const AckByte = 0x06

// ControlCode selects the function code namespace of a frame
type ControlCode uint8

// Control codes
const (
	ControlRegister ControlCode = 0x30
	ControlRead     ControlCode = 0x31
	ControlWrite    ControlCode = 0x32
	ControlExecute  ControlCode = 0x33
)

// Register family function codes (controller -> inverter)
const (
	FuncOfflineQuery             = 0x40
	FuncSendRegisterAddress      = 0x41
	FuncRemoveRegister           = 0x42
	FuncReconnectRemovedInverter = 0x43
	FuncReRegister               = 0x44
)

// Register family function codes (inverter -> controller)
const (
	FuncReRegisterResponse               = 0xBB
	FuncReconnectRemovedInverterResponse = 0xBC
	FuncRemoveRegisterResponse           = 0xBD
	FuncSendRegisterAddressResponse      = 0xBE
	FuncOfflineQueryResponse             = 0xBF
)

// Read family function codes (controller -> inverter)
const (
	FuncReadDescription              = 0x40
	FuncReadWriteDescription         = 0x41
	FuncQueryNormalInfo              = 0x42
	FuncQueryInverterIdInfo          = 0x43
	FuncReadSetInfo                  = 0x44
	FuncReadRtcTime                  = 0x45
	FuncReadModelInfo                = 0x46
	FuncRielloFixSize                = 0x47
	FuncPv33SlaveAInfo               = 0x48
	FuncPv33SlaveBInfo               = 0x49
	FuncReadDcCurrentInjection       = 0x4A
	FuncReadMasterSlaveLoggerVersion = 0x4B
)

// Read family function codes (inverter -> controller)
const (
	FuncReadDescriptionResponse              = 0xBF
	FuncReadWriteDescriptionResponse         = 0xBE
	FuncQueryNormalInfoResponse              = 0xBD
	FuncQueryInverterIdInfoResponse          = 0xBC
	FuncReadSetInfoResponse                  = 0xBB
	FuncReadRtcTimeResponse                  = 0xBA
	FuncReadModelInfoResponse                = 0xB9
	FuncRielloFixSizeResponse                = 0xB8
	FuncPv33SlaveAInfoResponse               = 0xB7
	FuncPv33SlaveBInfoResponse               = 0xB6
	FuncReadDcCurrentInjectionResponse       = 0xB5
	FuncReadMasterSlaveLoggerVersionResponse = 0xB4
)
