// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rootfile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bpowers/rootfile/objects"
	"github.com/bpowers/rootfile/rbytes"
)

// Object is anything that can be stored in a file.  KeyKind is the ROOT
// class name; it must have been registered with RegisterKind.
type Object interface {
	KeyKind() string
	// ByteLen is the expected encoded size.  The key written in front of
	// the payload is patched with the real size afterwards.
	ByteLen() int
	WriteBytes(c *rbytes.Cursor, s rbytes.Sink) error
}

// Titled objects supply their own key title instead of the kind's default.
type Titled interface {
	KeyTitle() string
}

// Kind holds the fixed key fields for one class of object.
type Kind struct {
	ClassName string
	Title     string
}

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Kind{
		objects.ClassObjString: {ClassName: objects.ClassObjString, Title: "Collectable string class"},
		objects.ClassAxis:      {ClassName: objects.ClassAxis},
	}

	errKindRegistered = errors.New("kind already registered")
)

// RegisterKind makes objects whose KeyKind is className storable.
func RegisterKind(className, title string) error {
	if className == "" {
		return errors.New("empty class name")
	}
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, ok := kinds[className]; ok {
		return fmt.Errorf("%q: %w", className, errKindRegistered)
	}
	kinds[className] = Kind{ClassName: className, Title: title}
	return nil
}

func lookupKind(className string) (Kind, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	k, ok := kinds[className]
	return k, ok
}
