// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/kmcardle/genescore"
)

func main() {
	genescore.Main()
}
