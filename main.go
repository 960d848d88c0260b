// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Trackside - DCC decoder programmer and layout console
//
// A CLI tool for reading and writing decoder CVs on a programming track and
// for driving locos and accessories on the main track through a booster
// board.

package main

import (
	"os"

	"github.com/Thermoquad/trackside/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
