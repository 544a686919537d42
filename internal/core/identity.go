package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blackroom/relay/internal/store"
)

// ResolveInput carries what a transport knows about a sender. Any field may
// be empty; the WebSocket path supplies no network metadata at all.
type ResolveInput struct {
	Fingerprint string
	Label       string
	RemoteAddr  string
	UserAgent   string
}

// IdentityResolver reconciles inbound senders with stable device records.
// Lookup is by fingerprint when supplied, otherwise by label — a weak,
// non-unique heuristic kept only for first contacts without a fingerprint.
type IdentityResolver struct {
	devices store.DeviceStore
}

// NewIdentityResolver builds a resolver over the device store.
func NewIdentityResolver(devices store.DeviceStore) *IdentityResolver {
	return &IdentityResolver{devices: devices}
}

// Resolve maps the input to a device, creating one on first contact and
// refreshing label and last-seen metadata otherwise. Resolution always
// succeeds for a healthy store and is idempotent: repeated calls with the
// same fingerprint update the same row, never duplicate it.
func (r *IdentityResolver) Resolve(ctx context.Context, in ResolveInput) (*store.Device, error) {
	dev, err := r.lookup(ctx, in)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	if dev == nil {
		created, err := r.devices.CreateDevice(ctx, &store.Device{
			Fingerprint: in.Fingerprint,
			Label:       strings.TrimSpace(in.Label),
			UserAgent:   in.UserAgent,
			IPFirst:     in.RemoteAddr,
			IPLast:      in.RemoteAddr,
		})
		if err != nil {
			return nil, fmt.Errorf("create device: %w", err)
		}
		return created, nil
	}

	if label := strings.TrimSpace(in.Label); label != "" && label != dev.Label {
		dev.Label = label
	}
	if in.UserAgent != "" {
		dev.UserAgent = in.UserAgent
	}
	if in.RemoteAddr != "" {
		dev.IPLast = in.RemoteAddr
	}

	updated, err := r.devices.UpdateDeviceSeen(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}
	return updated, nil
}

func (r *IdentityResolver) lookup(ctx context.Context, in ResolveInput) (*store.Device, error) {
	if in.Fingerprint != "" {
		return r.devices.GetDeviceByFingerprint(ctx, in.Fingerprint)
	}
	if in.Label != "" {
		return r.devices.GetDeviceByLabel(ctx, in.Label)
	}
	return nil, store.ErrNotFound
}
