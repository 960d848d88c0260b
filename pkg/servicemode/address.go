// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"context"
	"fmt"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// Identity is what the address-read protocol learned about the decoder on
// the programming track
type Identity struct {
	CV29         uint8
	Features     dcc.FeatureSet
	Address      int
	AddressKnown bool
	CV8          Value
	Manufacturer string
}

// Accessory reports whether the decoder is an accessory decoder
func (id Identity) Accessory() bool {
	return id.Features.Accessory()
}

// ShortDefault reports whether the decoder answers on the factory short
// address
func (id Identity) ShortDefault() bool {
	return id.AddressKnown && !id.Accessory() && id.Address == dcc.DefaultAddress
}

func (id Identity) String() string {
	kind := "loco"
	if id.Accessory() {
		kind = "accessory"
	}
	addr := "?"
	if id.AddressKnown {
		addr = fmt.Sprintf("%d", id.Address)
	}
	if id.CV8.Known {
		return fmt.Sprintf("%s with address %s, manufacturer: %s", kind, addr, id.Manufacturer)
	}
	return fmt.Sprintf("%s with address %s", kind, addr)
}

// Identify reads CV29 and the address CVs it selects, then the manufacturer
// ID from CV8. Accessory decoders are forced into the canonical accessory
// configuration before their address is read.
func (s *Session) Identify(ctx context.Context) (Identity, error) {
	if s.opts.WriteOnly {
		return Identity{}, ErrWriteOnly
	}

	cv29, err := s.Read(ctx, dcc.CVConfig, false)
	if err != nil {
		return Identity{}, err
	}
	if !cv29.Known {
		cv29, err = s.Read(ctx, dcc.CVConfig, true)
		if err != nil {
			return Identity{}, err
		}
	}

	config := cv29.Byte
	if config&dcc.CV29Accessory != 0 && config != dcc.CV29CanonicalAccessory {
		s.log.Info().Uint8("cv29", config).Msg("forcing canonical accessory configuration")
		if err := s.Write(ctx, dcc.CVConfig, dcc.CV29CanonicalAccessory); err != nil {
			if IsFatal(err) {
				return Identity{}, err
			}
			s.log.Warn().Err(err).Msg("keeping original CV29")
		} else {
			config = dcc.CV29CanonicalAccessory
		}
	}

	id := Identity{CV29: config, Features: dcc.DecodeCV29(config)}

	switch {
	case id.Features.LongAddress() && id.Features.Accessory():
		id.Address, id.AddressKnown, err = s.readPair(ctx, dcc.CVAccessoryAddrHigh, dcc.CVPrimaryAddress, dcc.DecodeAccessoryAddress)
	case id.Features.LongAddress():
		id.Address, id.AddressKnown, err = s.readPair(ctx, dcc.CVExtAddressHigh, dcc.CVExtAddressLow, dcc.DecodeMultifunctionAddress)
	default:
		var v Value
		v, err = s.Read(ctx, dcc.CVPrimaryAddress, false)
		id.Address, id.AddressKnown = int(v.Byte), v.Known
	}
	if err != nil {
		return Identity{}, err
	}

	id.CV8, err = s.Read(ctx, dcc.CVManufacturer, false)
	if err != nil {
		return Identity{}, err
	}
	if id.CV8.Known {
		id.Manufacturer = dcc.ManufacturerName(id.CV8.Byte)
	}

	s.log.Info().
		Str("class", id.Features.Class.String()).
		Int("address", id.Address).
		Bool("address_known", id.AddressKnown).
		Str("manufacturer", id.Manufacturer).
		Msg("decoder identified")
	return id, nil
}

// readPair reads the high CV then the low CV and combines them with decode
func (s *Session) readPair(ctx context.Context, highCV, lowCV int, decode func(lsb, msb uint8) int) (int, bool, error) {
	msb, err := s.Read(ctx, highCV, false)
	if err != nil {
		return 0, false, err
	}
	lsb, err := s.Read(ctx, lowCV, false)
	if err != nil {
		return 0, false, err
	}
	if !msb.Known || !lsb.Known {
		return 0, false, nil
	}
	return decode(lsb.Byte, msb.Byte), true, nil
}

// SetAddress programs a new address in the representation matching the
// decoder class. Locos above the short range switch to long addressing.
func (s *Session) SetAddress(ctx context.Context, id Identity, addr int) error {
	if id.AddressKnown && id.Address == addr {
		s.log.Info().Int("address", addr).Msg("address unchanged")
		return nil
	}

	if id.Accessory() {
		if !dcc.ValidAccessoryAddress(addr) {
			return fmt.Errorf("%w: accessory %d", ErrInvalidAddress, addr)
		}
		lsb, msb := dcc.EncodeAccessoryAddress(addr)
		if err := s.Write(ctx, dcc.CVAccessoryAddrHigh, msb); err != nil {
			return err
		}
		return s.Write(ctx, dcc.CVPrimaryAddress, lsb)
	}

	if !dcc.ValidMultifunctionAddress(addr) {
		return fmt.Errorf("%w: loco %d", ErrInvalidAddress, addr)
	}

	if dcc.ValidLongAddress(addr) {
		cv1, err := s.Read(ctx, dcc.CVPrimaryAddress, false)
		if err != nil {
			return err
		}
		if !cv1.Known || cv1.Byte != dcc.DefaultAddress {
			if err := s.Write(ctx, dcc.CVPrimaryAddress, dcc.DefaultAddress); err != nil {
				return err
			}
		}
		lsb, msb := dcc.EncodeMultifunctionAddress(addr)
		if err := s.Write(ctx, dcc.CVExtAddressHigh, msb); err != nil {
			return err
		}
		if err := s.Write(ctx, dcc.CVExtAddressLow, lsb); err != nil {
			return err
		}
		return s.Write(ctx, dcc.CVConfig, id.CV29|dcc.CV29LongAddress)
	}

	if err := s.Write(ctx, dcc.CVPrimaryAddress, uint8(addr)); err != nil {
		return err
	}
	return s.Write(ctx, dcc.CVConfig, id.CV29&^dcc.CV29LongAddress)
}

// LocoProfile is the result of scanning a loco on the programming track
type LocoProfile struct {
	Address    int
	Long       bool
	SpeedSteps int
	CV29       uint8
}

// ScanLoco reads the address and speed step mode of a multifunction
// decoder. Every read is required.
func (s *Session) ScanLoco(ctx context.Context) (LocoProfile, error) {
	if s.opts.WriteOnly {
		return LocoProfile{}, ErrWriteOnly
	}

	cv29, err := s.Read(ctx, dcc.CVConfig, true)
	if err != nil {
		return LocoProfile{}, err
	}
	profile := LocoProfile{
		CV29:       cv29.Byte,
		Long:       cv29.Byte&dcc.CV29LongAddress != 0,
		SpeedSteps: dcc.SpeedStepsFromCV29(cv29.Byte),
	}

	if profile.Long {
		msb, err := s.Read(ctx, dcc.CVExtAddressHigh, true)
		if err != nil {
			return LocoProfile{}, err
		}
		lsb, err := s.Read(ctx, dcc.CVExtAddressLow, true)
		if err != nil {
			return LocoProfile{}, err
		}
		profile.Address = dcc.DecodeMultifunctionAddress(lsb.Byte, msb.Byte)
	} else {
		cv1, err := s.Read(ctx, dcc.CVPrimaryAddress, true)
		if err != nil {
			return LocoProfile{}, err
		}
		profile.Address = int(cv1.Byte)
	}

	s.log.Info().
		Int("address", profile.Address).
		Bool("long", profile.Long).
		Int("speed_steps", profile.SpeedSteps).
		Msg("loco scanned")
	return profile, nil
}
