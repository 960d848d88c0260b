// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import "fmt"

// AnomalyType classifies a validation failure
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidCV
	AnomalyInvalidValue
	AnomalyInvalidAddress
	AnomalyInvalidSpeed
	AnomalyInvalidFunction
	AnomalyUnknownType
	AnomalyDecodeError
)

// ValidationError describes one anomaly found in a packet
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks field presence and ranges. It returns an empty
// slice for a valid packet.
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("CBOR decode failed: %v", err),
		}}
	}

	m := p.PayloadMap()
	var errs []ValidationError
	check := func(field string, key int, max uint64, anomaly AnomalyType) {
		v, ok := GetMapUint(m, key)
		if !ok {
			errs = append(errs, ValidationError{
				Type:    AnomalyMissingField,
				Message: fmt.Sprintf("%s: missing %s", FormatMessageType(p.Type()), field),
				Details: map[string]interface{}{"key": key},
			})
			return
		}
		if v > max {
			errs = append(errs, ValidationError{
				Type:    anomaly,
				Message: fmt.Sprintf("%s: invalid %s=%d (max %d)", FormatMessageType(p.Type()), field, v, max),
				Details: map[string]interface{}{field: v, "max": max},
			})
		}
	}
	checkCV := func(key int) {
		check("cv", key, MaxCV, AnomalyInvalidCV)
		if v, ok := GetMapUint(m, key); ok && v == 0 {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidCV,
				Message: fmt.Sprintf("%s: invalid cv=0", FormatMessageType(p.Type())),
				Details: map[string]interface{}{"cv": v},
			})
		}
	}

	switch p.Type() {
	case MsgVerifyByte, MsgWriteByte:
		checkCV(KeyCV)
		check("value", KeyValue, 0xFF, AnomalyInvalidValue)
	case MsgVerifyBit:
		checkCV(KeyCV)
		check("bit", KeyBit, 7, AnomalyInvalidValue)
	case MsgSpeed:
		check("address", KeyAddress, MaxLocoAddress, AnomalyInvalidAddress)
		check("speed", KeySpeed, MaxSpeed, AnomalyInvalidSpeed)
	case MsgFunction:
		check("address", KeyAddress, MaxLocoAddress, AnomalyInvalidAddress)
		check("function", KeyFunction, MaxFunction, AnomalyInvalidFunction)
	case MsgAccessoryBasic:
		check("address", KeyAddress, MaxAccAddress, AnomalyInvalidAddress)
	case MsgAccessoryExtended:
		check("address", KeyAddress, MaxAccAddress, AnomalyInvalidAddress)
		check("aspect", KeyAspect, MaxSignalAspect, AnomalyInvalidValue)
	case MsgPoMMulti:
		check("address", KeyAddress, MaxLocoAddress, AnomalyInvalidAddress)
		checkCV(KeyPoMCV)
		check("value", KeyPoMValue, 0xFF, AnomalyInvalidValue)
	case MsgPoMAccessory:
		check("address", KeyAddress, MaxAccAddress, AnomalyInvalidAddress)
		checkCV(KeyPoMCV)
		check("value", KeyPoMValue, 0xFF, AnomalyInvalidValue)
	default:
		if _, known := messageNames[p.Type()]; !known {
			errs = append(errs, ValidationError{
				Type:    AnomalyUnknownType,
				Message: fmt.Sprintf("unknown message type 0x%02X", p.Type()),
				Details: map[string]interface{}{"type": p.Type()},
			})
		}
	}
	return errs
}
