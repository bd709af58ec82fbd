package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrNoDevice indicates that no usable GPU device could be opened.
var ErrNoDevice = errors.New("gpu: no usable device")

// DeviceHandle provides GPU device access from a host application.
//
// It is an alias for gpucontext.DeviceProvider, so hosts already built
// on the gpucontext ecosystem can pass their provider directly. To be
// usable here the provider must additionally expose the underlying HAL
// objects through HalDevice() any and HalQueue() any.
type DeviceHandle = gpucontext.DeviceProvider

// deviceProvider owns the process-wide GPU context. All engines share
// one device and queue; the adapter is opened once and kept until
// Shutdown.
type deviceProvider struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	adapterName string

	// external is true when the device came from a host application.
	// Shutdown must not destroy resources it does not own.
	external bool
}

var (
	providerMu sync.RWMutex
	provider   *deviceProvider
)

// Initialize opens the process-wide GPU device and returns the selected
// adapter's name for diagnostics. It is safe to call more than once;
// subsequent calls return the existing adapter's name. Engines call it
// implicitly, so an explicit call is only needed to surface the adapter
// name or to fail fast.
func Initialize() (string, error) {
	providerMu.RLock()
	p := provider
	providerMu.RUnlock()
	if p != nil {
		return p.adapterName, nil
	}

	providerMu.Lock()
	defer providerMu.Unlock()
	if provider != nil {
		return provider.adapterName, nil
	}

	p, err := openDevice()
	if err != nil {
		return "", err
	}
	provider = p
	slogger().Info("gpu: adapter selected", "adapter", p.adapterName)
	return p.adapterName, nil
}

// UseSharedDevice switches the package to a device owned by the host
// application. The handle must expose the HAL objects through
// HalDevice() any and HalQueue() any. Any previously opened standalone
// device is destroyed.
func UseSharedDevice(handle DeviceHandle) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := handle.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: device handle does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: device handle HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: device handle HalQueue is not hal.Queue")
	}

	providerMu.Lock()
	defer providerMu.Unlock()

	if provider != nil && !provider.external {
		if provider.device != nil {
			provider.device.Destroy()
		}
		if provider.instance != nil {
			provider.instance.Destroy()
		}
	}

	provider = &deviceProvider{
		device:      device,
		queue:       queue,
		adapterName: "shared",
		external:    true,
	}
	slogger().Debug("gpu: switched to shared device")
	return nil
}

// Shutdown destroys the process-wide device if this package owns it.
// Engines created before Shutdown must already be closed.
func Shutdown() {
	providerMu.Lock()
	defer providerMu.Unlock()

	if provider == nil {
		return
	}
	if !provider.external {
		if provider.device != nil {
			provider.device.Destroy()
		}
		if provider.instance != nil {
			provider.instance.Destroy()
		}
	}
	provider = nil
}

// acquire returns the shared provider, opening the device on first use.
func acquire() (*deviceProvider, error) {
	providerMu.RLock()
	p := provider
	providerMu.RUnlock()
	if p != nil {
		return p, nil
	}

	if _, err := Initialize(); err != nil {
		return nil, err
	}

	providerMu.RLock()
	p = provider
	providerMu.RUnlock()
	if p == nil {
		return nil, ErrNoDevice
	}
	return p, nil
}

// openDevice creates a standalone Vulkan device, preferring discrete
// then integrated GPUs.
func openDevice() (*deviceProvider, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrNoDevice, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrNoDevice)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrNoDevice, err)
	}

	return &deviceProvider{
		instance:    instance,
		device:      openDev.Device,
		queue:       openDev.Queue,
		adapterName: selected.Info.Name,
	}, nil
}
