// Package result implements the packed result codes carried on the wire.
//
// A code packs a module and a description into one u32:
//
//	 31        22 21                 9 8         0
//	┌────────────┬────────────────────┬───────────┐
//	│  (unused)  │    description     │  module   │
//	└────────────┴────────────────────┴───────────┘
//
// Zero is success. Codes are displayed as "2MMM-DDDD" (2000 + module, description).
package result

import (
	"errors"
	"fmt"
)

const (
	moduleBits      = 9
	descriptionBits = 13

	moduleMask      = 1<<moduleBits - 1
	descriptionMask = 1<<descriptionBits - 1
)

// Code is a raw result value. Non-zero codes implement error.
type Code uint32

// Success is the zero code.
const Success Code = 0

// Make packs a module and description into a Code.
func Make(module, description uint32) Code {
	return Code((module & moduleMask) | ((description & descriptionMask) << moduleBits))
}

func (c Code) Module() uint32 {
	return uint32(c) & moduleMask
}

func (c Code) Description() uint32 {
	return (uint32(c) >> moduleBits) & descriptionMask
}

func (c Code) IsSuccess() bool {
	return c == Success
}

func (c Code) String() string {
	return fmt.Sprintf("%04d-%04d", 2000+c.Module(), c.Description())
}

func (c Code) Error() string {
	if name, ok := names[c]; ok {
		return fmt.Sprintf("result %s (%s)", c.String(), name)
	}
	return "result " + c.String()
}

// Is reports whether target is the same code, so errors.Is works through wrapping.
func (c Code) Is(target error) bool {
	var other Code
	if errors.As(target, &other) {
		return other == c
	}
	return false
}

// FromError extracts the code carried by err. nil maps to Success and errors
// that carry no code map to ResultUnknown.
func FromError(err error) Code {
	if err == nil {
		return Success
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ResultUnknown
}

// Err returns c as an error, or nil for Success.
func (c Code) Err() error {
	if c.IsSuccess() {
		return nil
	}
	return c
}
