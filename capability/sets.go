package capability

import (
	"context"

	"github.com/goliatone/go-clientcore/core"
	"github.com/goliatone/go-clientcore/logging"
	"github.com/goliatone/go-clientcore/platform"
	"github.com/goliatone/go-clientcore/vendorservices"
)

// Capabilities is the set selected for one host. Callers switch on the
// concrete type when they need surface-specific members.
type Capabilities interface {
	Descriptor() platform.Descriptor
	Storage() core.StorageAdapter
	Logger() core.Logger
	Device() DeviceQueries
}

type baseCapabilities struct {
	descriptor platform.Descriptor
	storage    core.StorageAdapter
	logger     core.Logger
	device     DeviceQueries
}

func (c *baseCapabilities) Descriptor() platform.Descriptor { return c.descriptor }
func (c *baseCapabilities) Storage() core.StorageAdapter   { return c.storage }
func (c *baseCapabilities) Logger() core.Logger            { return c.logger }
func (c *baseCapabilities) Device() DeviceQueries          { return c.device }

type WebCapabilities struct {
	baseCapabilities
}

type MobileCapabilities struct {
	baseCapabilities
}

// VendorCapabilities is a mobile set whose push, analytics, account and map
// services come from the vendor bundle.
type VendorCapabilities struct {
	MobileCapabilities
	vendor *vendorservices.Lazy
}

// Vendor builds the vendor bundle on first use.
func (c *VendorCapabilities) Vendor(ctx context.Context) *vendorservices.Bundle {
	return c.vendor.Get(ctx)
}

// Resolve selects the capability set for the descriptor.
func (f *Factory) Resolve(ctx context.Context, descriptor platform.Descriptor, logOpts logging.Options) Capabilities {
	base := baseCapabilities{
		descriptor: descriptor,
		storage:    f.CreateStorage(ctx, descriptor.Surface),
		logger:     f.CreateLogger(descriptor.Surface, logOpts),
	}
	if descriptor.Surface != platform.SurfaceMobile {
		base.device = f.CreateDeviceQueries(descriptor, nil)
		return &WebCapabilities{baseCapabilities: base}
	}
	vendor := f.CreateVendorServices(descriptor)
	base.device = f.CreateDeviceQueries(descriptor, vendor)
	if vendor == nil {
		return &MobileCapabilities{baseCapabilities: base}
	}
	return &VendorCapabilities{
		MobileCapabilities: MobileCapabilities{baseCapabilities: base},
		vendor:             vendor,
	}
}

var (
	_ Capabilities = (*WebCapabilities)(nil)
	_ Capabilities = (*MobileCapabilities)(nil)
	_ Capabilities = (*VendorCapabilities)(nil)
)
