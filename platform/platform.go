package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-clientcore/core"
	glog "github.com/goliatone/go-logger/glog"
)

type Surface string

const (
	SurfaceWeb    Surface = "web"
	SurfaceMobile Surface = "mobile"
)

type VendorClass string

const (
	VendorStandard    VendorClass = "standard"
	VendorServiceOnly VendorClass = "vendor_service_only"
)

// Descriptor is the read-only view of the host environment.
type Descriptor struct {
	Surface     Surface
	VendorClass VendorClass
	OS          string
	OSVersion   string
	Brand       string
}

func (d Descriptor) IsMobile() bool {
	return d.Surface == SurfaceMobile
}

func (d Descriptor) RequiresVendorServices() bool {
	return d.Surface == SurfaceMobile && d.VendorClass == VendorServiceOnly
}

// DefaultVendorBrands lists brands that ship without the standard mobile
// service stack. Matching is case-insensitive.
var DefaultVendorBrands = []string{"huawei", "honor", "华为", "荣耀"}

const (
	propertyBrand        = "ro.product.brand"
	propertyManufacturer = "ro.product.manufacturer"
	propertyOSRelease    = "ro.build.version.release"

	defaultPropertyTimeout = 2 * time.Second
)

var androidRuntimeMarkers = []string{"ANDROID_ROOT", "ANDROID_DATA"}

// Probe reads facts about the running host. Every function is optional.
type Probe struct {
	GOOS      func() string
	LookupEnv func(key string) (string, bool)
	Property  func(ctx context.Context, name string) (string, error)
}

// SystemProbe reads the Go runtime, the process environment and Android
// build properties through getprop.
func SystemProbe() Probe {
	return Probe{
		GOOS:      func() string { return runtime.GOOS },
		LookupEnv: os.LookupEnv,
		Property:  getprop,
	}
}

func getprop(ctx context.Context, name string) (string, error) {
	path, err := exec.LookPath("getprop")
	if err != nil {
		return "", err
	}
	output, err := exec.CommandContext(ctx, path, name).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

type Option func(*Detector)

func WithProbe(probe Probe) Option {
	return func(d *Detector) {
		d.probe = probe
	}
}

func WithVendorBrands(brands ...string) Option {
	return func(d *Detector) {
		d.vendorBrands = normalizeBrands(brands)
	}
}

func WithLogger(logger core.Logger) Option {
	return func(d *Detector) {
		d.logger = glog.Ensure(logger)
	}
}

// Detector computes the descriptor once and serves the cached value until
// Reset is called.
type Detector struct {
	mu           sync.Mutex
	probe        Probe
	vendorBrands map[string]struct{}
	logger       core.Logger
	cached       *Descriptor
}

func NewDetector(opts ...Option) *Detector {
	detector := &Detector{
		probe:        SystemProbe(),
		vendorBrands: normalizeBrands(DefaultVendorBrands),
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(detector)
		}
	}
	return detector
}

func (d *Detector) Detect() Descriptor {
	if d == nil {
		return safeDefault()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached != nil {
		return *d.cached
	}
	descriptor := d.detect()
	d.cached = &descriptor
	return descriptor
}

// Reset drops the cached descriptor so the next Detect probes again.
func (d *Detector) Reset() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *Detector) detect() (descriptor Descriptor) {
	descriptor = safeDefault()
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Warn("platform probe panicked", "panic", fmt.Sprint(recovered))
			descriptor = safeDefault()
		}
	}()

	goos := strings.ToLower(strings.TrimSpace(d.goos()))
	descriptor.OS = goos
	if !d.isMobile(goos) {
		return descriptor
	}

	descriptor.Surface = SurfaceMobile
	if goos != "ios" {
		descriptor.OS = "android"
	}
	descriptor.OSVersion = d.property(propertyOSRelease)
	descriptor.Brand = d.property(propertyBrand)
	if d.isVendorBrand(descriptor.Brand) || d.isVendorBrand(d.property(propertyManufacturer)) {
		descriptor.VendorClass = VendorServiceOnly
	}
	return descriptor
}

func (d *Detector) goos() string {
	if d.probe.GOOS == nil {
		return runtime.GOOS
	}
	return d.probe.GOOS()
}

func (d *Detector) isMobile(goos string) bool {
	switch goos {
	case "android", "ios":
		return true
	}
	if d.probe.LookupEnv == nil {
		return false
	}
	for _, marker := range androidRuntimeMarkers {
		if value, ok := d.probe.LookupEnv(marker); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

func (d *Detector) property(name string) string {
	if d.probe.Property == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultPropertyTimeout)
	defer cancel()
	value, err := d.probe.Property(ctx, name)
	if err != nil {
		d.logger.Debug("platform property lookup failed", "property", name, "error", err)
		return ""
	}
	return strings.TrimSpace(value)
}

func (d *Detector) isVendorBrand(brand string) bool {
	normalized := strings.ToLower(strings.TrimSpace(brand))
	if normalized == "" {
		return false
	}
	_, ok := d.vendorBrands[normalized]
	return ok
}

func normalizeBrands(brands []string) map[string]struct{} {
	out := make(map[string]struct{}, len(brands))
	for _, brand := range brands {
		normalized := strings.ToLower(strings.TrimSpace(brand))
		if normalized != "" {
			out[normalized] = struct{}{}
		}
	}
	return out
}

func safeDefault() Descriptor {
	return Descriptor{Surface: SurfaceWeb, VendorClass: VendorStandard}
}

var defaultDetector = NewDetector()

// Detect returns the process-wide descriptor.
func Detect() Descriptor {
	return defaultDetector.Detect()
}

// ResetCache clears the process-wide descriptor.
func ResetCache() {
	defaultDetector.Reset()
}
