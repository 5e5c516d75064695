// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package lock

import "os"

// Exclusive is a no-op where flock isn't available.
func Exclusive(*os.File) error { return nil }

func Release(*os.File) error { return nil }
