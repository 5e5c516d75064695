// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package lock guards an output file against a second writer in this or
// another process.
package lock

import "errors"

var ErrLocked = errors.New("file is locked by another writer")
