// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

import "fmt"

// NMRA manufacturer IDs as reported in CV8
var manufacturers = map[uint8]string{
	1:   "CML Electronics",
	11:  "NCE Corporation",
	13:  "Public Domain & DIY",
	48:  "Hornby",
	62:  "Tams Elektronik",
	78:  "Train-O-Matic",
	85:  "Uhlenbrock",
	97:  "Doehler & Haass",
	99:  "Lenz Elektronik",
	101: "Bachmann",
	109: "Viessmann",
	113: "QS Industries",
	123: "Massoth",
	127: "Atlas",
	129: "Digitrax",
	131: "Trix",
	141: "SoundTraxx",
	143: "Model Rectifier Corp",
	145: "ZIMO",
	151: "ESU",
	155: "Fleischmann",
	157: "Kuehn",
	161: "Roco",
	162: "Piko",
}

// ManufacturerName returns the manufacturer registered for a CV8 value
func ManufacturerName(cv8 uint8) string {
	if name, ok := manufacturers[cv8]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", cv8)
}
