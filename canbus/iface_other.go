// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package canbus

import "errors"

var errNoNetlink = errors.New("canbus: link administration requires linux")

// Interface is only available on linux; this stub keeps non-linux
// development builds compiling.
type Interface struct{}

// NewInterface fails on non-linux platforms.
func NewInterface(name string) (*Interface, error) {
	return nil, errNoNetlink
}

func (i *Interface) Name() string { return "" }

func (i *Interface) Up() error { return errNoNetlink }

func (i *Interface) Down() error { return errNoNetlink }
