package platform

import (
	"context"
	"errors"
	"testing"
)

func fakeProbe(goos string, env map[string]string, props map[string]string) Probe {
	return Probe{
		GOOS: func() string { return goos },
		LookupEnv: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
		Property: func(_ context.Context, name string) (string, error) {
			value, ok := props[name]
			if !ok {
				return "", errors.New("no such property")
			}
			return value, nil
		},
	}
}

func TestDetector_DesktopDefaultsToWeb(t *testing.T) {
	descriptor := NewDetector(WithProbe(fakeProbe("linux", nil, nil))).Detect()
	if descriptor.Surface != SurfaceWeb || descriptor.VendorClass != VendorStandard {
		t.Fatalf("unexpected descriptor %+v", descriptor)
	}
	if descriptor.OS != "linux" {
		t.Fatalf("expected os to be reported, got %q", descriptor.OS)
	}
}

func TestDetector_VendorBrandsMatchCaseInsensitiveAndLocalized(t *testing.T) {
	cases := map[string]map[string]string{
		"upper latin":  {"ro.product.brand": "HUAWEI"},
		"mixed case":   {"ro.product.brand": "Honor"},
		"localized":    {"ro.product.brand": "荣耀"},
		"manufacturer": {"ro.product.brand": "nova", "ro.product.manufacturer": "华为"},
	}
	for name, props := range cases {
		t.Run(name, func(t *testing.T) {
			descriptor := NewDetector(WithProbe(fakeProbe("android", nil, props))).Detect()
			if descriptor.Surface != SurfaceMobile || descriptor.VendorClass != VendorServiceOnly {
				t.Fatalf("expected vendor-service-only mobile, got %+v", descriptor)
			}
			if !descriptor.RequiresVendorServices() {
				t.Fatalf("expected vendor services to be required")
			}
		})
	}
}

func TestDetector_AndroidRuntimeMarkersImplyMobile(t *testing.T) {
	probe := fakeProbe("linux", map[string]string{"ANDROID_ROOT": "/system"}, map[string]string{
		"ro.product.brand":         "google",
		"ro.build.version.release": "14",
	})
	descriptor := NewDetector(WithProbe(probe)).Detect()
	if descriptor.Surface != SurfaceMobile || descriptor.VendorClass != VendorStandard {
		t.Fatalf("expected standard mobile, got %+v", descriptor)
	}
	if descriptor.OS != "android" || descriptor.OSVersion != "14" || descriptor.Brand != "google" {
		t.Fatalf("unexpected mobile facts %+v", descriptor)
	}
}

func TestDetector_BrandLookupFailureDefaultsToStandard(t *testing.T) {
	descriptor := NewDetector(WithProbe(fakeProbe("android", nil, nil))).Detect()
	if descriptor.Surface != SurfaceMobile || descriptor.VendorClass != VendorStandard {
		t.Fatalf("expected standard on lookup failure, got %+v", descriptor)
	}
}

func TestDetector_PanickingProbeResolvesToSafeDefault(t *testing.T) {
	probe := Probe{GOOS: func() string { panic("boom") }}
	descriptor := NewDetector(WithProbe(probe)).Detect()
	if descriptor != safeDefault() {
		t.Fatalf("expected safe default, got %+v", descriptor)
	}
}

func TestDetector_MemoizesUntilReset(t *testing.T) {
	calls := 0
	probe := fakeProbe("android", nil, map[string]string{"ro.product.brand": "huawei"})
	probe.GOOS = func() string {
		calls++
		return "android"
	}
	detector := NewDetector(WithProbe(probe))
	first := detector.Detect()
	second := detector.Detect()
	if calls != 1 || first != second {
		t.Fatalf("expected memoized descriptor, probe calls=%d", calls)
	}
	detector.Reset()
	detector.Detect()
	if calls != 2 {
		t.Fatalf("expected reset to re-probe, calls=%d", calls)
	}
}

func TestDetector_CustomVendorBrands(t *testing.T) {
	probe := fakeProbe("android", nil, map[string]string{"ro.product.brand": "Acme"})
	descriptor := NewDetector(WithProbe(probe), WithVendorBrands("acme")).Detect()
	if descriptor.VendorClass != VendorServiceOnly {
		t.Fatalf("expected custom vendor brand to match, got %+v", descriptor)
	}
}

func TestPackageDetect_IsStableAcrossCalls(t *testing.T) {
	ResetCache()
	if Detect() != Detect() {
		t.Fatalf("expected cached package descriptor")
	}
	var nilDetector *Detector
	if nilDetector.Detect() != safeDefault() {
		t.Fatalf("expected nil detector to return safe default")
	}
}
