// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package canbus

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Interface administers a CAN network interface over rtnetlink. It
// covers the "link ready" precondition for the bridge: bring the link
// up before the first receive, bring it down on teardown.
//
// Bit timing (bitrate) is configured out of band with the usual
// `ip link set canX type can bitrate N` before the interface is
// brought up; this type only toggles the administrative state.
type Interface struct {
	name  string
	index int32
}

// NewInterface resolves the named CAN interface.
func NewInterface(name string) (*Interface, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %s: %w", name, err)
	}
	return &Interface{name: name, index: int32(iface.Index)}, nil
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// Up sets the administrative link state to up.
func (i *Interface) Up() error {
	return i.setFlags(unix.IFF_UP, unix.IFF_UP)
}

// Down sets the administrative link state to down.
func (i *Interface) Down() error {
	return i.setFlags(0, unix.IFF_UP)
}

// setFlags sends one RTM_NEWLINK request flipping the given flag bits.
func (i *Interface) setFlags(flags, change uint32) error {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
	if err != nil {
		return fmt.Errorf("canbus: dial netlink: %w", err)
	}
	defer conn.Close()

	msg := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_NEWLINK,
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: marshalIfInfomsg(i.index, flags, change),
	}

	replies, err := conn.Execute(msg)
	if err != nil {
		return fmt.Errorf("canbus: set link state %s: %w", i.name, err)
	}
	if len(replies) > 1 {
		return fmt.Errorf("canbus: set link state %s: expected 1 reply, got %d", i.name, len(replies))
	}
	return nil
}

// marshalIfInfomsg encodes a struct ifinfomsg for RTM_NEWLINK.
func marshalIfInfomsg(index int32, flags, change uint32) []byte {
	buf := make([]byte, 4, 16)
	// family, reserved, type are zero.
	buf = binary.LittleEndian.AppendUint32(buf, uint32(index))
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, change)
	return buf
}
