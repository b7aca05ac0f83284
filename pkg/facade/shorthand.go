package facade

import (
	"context"
	"fmt"

	"github.com/digitalservo/cands-go/pkg/digitalservo"
)

// KeyDriveEnable is the digitalservo parameter key that arms or disarms a
// node's drive stage; writing a non-zero value enables it, zero disables
// it. This mirrors the enable/disable shorthand the original digitalservo
// host library exposed as a convenience over its raw set-value call.
const KeyDriveEnable uint16 = 0x0001

// DriveEnable arms destNodeID's drive stage.
func (i *Interface) DriveEnable(ctx context.Context, destNodeID uint8) error {
	return i.SendDigitalservoSetValue(ctx, destNodeID, digitalservo.Dict{
		Key:    KeyDriveEnable,
		Values: []digitalservo.PrimitiveData{digitalservo.U8(1)},
	})
}

// DriveDisable disarms destNodeID's drive stage.
func (i *Interface) DriveDisable(ctx context.Context, destNodeID uint8) error {
	return i.SendDigitalservoSetValue(ctx, destNodeID, digitalservo.Dict{
		Key:    KeyDriveEnable,
		Values: []digitalservo.PrimitiveData{digitalservo.U8(0)},
	})
}

// DriveEnableAll arms the drive stage of every node in nodeIDs, stopping at
// the first failure and reporting which node it failed on.
func (i *Interface) DriveEnableAll(ctx context.Context, nodeIDs []uint8) error {
	for _, id := range nodeIDs {
		if err := i.DriveEnable(ctx, id); err != nil {
			return fmt.Errorf("facade: drive enable node %d: %w", id, err)
		}
	}
	return nil
}

// DriveDisableAll disarms the drive stage of every node in nodeIDs, trying
// every node even if one fails, and returns the first error encountered
// (if any) only after attempting them all — shutting down as many drives
// as possible takes priority over reporting quickly.
func (i *Interface) DriveDisableAll(ctx context.Context, nodeIDs []uint8) error {
	var firstErr error
	for _, id := range nodeIDs {
		if err := i.DriveDisable(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadScalar reliably reads a single scalar parameter from destNodeID.
func (i *Interface) ReadScalar(ctx context.Context, destNodeID uint8, key uint16) (digitalservo.PrimitiveData, error) {
	dict, err := i.SendDigitalservoGetValue(ctx, destNodeID, key)
	if err != nil {
		return digitalservo.PrimitiveData{}, err
	}
	if len(dict.Values) != 1 {
		return digitalservo.PrimitiveData{}, fmt.Errorf("facade: key %#x is not a scalar (got %d values)", key, len(dict.Values))
	}
	return dict.Values[0], nil
}

// ReadVector reliably reads a vector-valued parameter from destNodeID.
func (i *Interface) ReadVector(ctx context.Context, destNodeID uint8, key uint16) ([]digitalservo.PrimitiveData, error) {
	dict, err := i.SendDigitalservoGetValue(ctx, destNodeID, key)
	if err != nil {
		return nil, err
	}
	return dict.Values, nil
}
