// Package vkdevice implements render.Device on a Vulkan logical device
// with one graphics and one present queue.
package vkdevice

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var deviceExtensions = []string{"VK_KHR_swapchain"}

var _ render.Device = (*Device)(nil)

// Surface is the window side of the device: it names the instance
// extensions it needs and creates the presentation surface.
type Surface interface {
	ProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vulkan.Instance) (vulkan.Surface, error)
}

type Options struct {
	Surface    Surface
	AppName    string
	AppVersion uint32
	// Validation enables the Khronos validation layer when it is
	// installed and routes its reports to the render logger.
	Validation bool
}

type pipeline struct {
	pipeline vulkan.Pipeline
	layout   vulkan.PipelineLayout
}

type buffer struct {
	buffer vulkan.Buffer
	memory vulkan.DeviceMemory
}

// Device is not safe for concurrent use.
type Device struct {
	instance vulkan.Instance
	debug    vulkan.DebugReportCallback
	surface  vulkan.Surface
	gpu      vulkan.PhysicalDevice
	device   vulkan.Device
	graphics vulkan.Queue
	present  vulkan.Queue
	families queueFamilies
	pool     vulkan.CommandPool

	name       string
	apiVersion uint32

	seq          render.Handle
	swapchains   table[vulkan.Swapchain]
	images       table[vulkan.Image]
	views        table[vulkan.ImageView]
	passes       table[vulkan.RenderPass]
	pipelines    table[pipeline]
	framebuffers table[vulkan.Framebuffer]
	commands     table[vulkan.CommandBuffer]
	semaphores   table[vulkan.Semaphore]
	fences       table[vulkan.Fence]
	buffers      table[buffer]

	// chainImages lists the image handles of each swap chain.
	chainImages map[render.Handle][]render.Handle
}

// New creates the instance, surface and logical device. On failure
// everything created so far is released.
func New(opts Options) (d *Device, err error) {
	if opts.Surface == nil {
		return nil, errors.New("vkdevice: no surface")
	}
	vulkan.SetGetInstanceProcAddr(opts.Surface.ProcAddr())
	if err := vulkan.Init(); err != nil {
		return nil, errors.Wrap(err, "init vulkan")
	}

	d = &Device{chainImages: make(map[render.Handle][]render.Handle)}
	d.swapchains = newTable[vulkan.Swapchain](&d.seq)
	d.images = newTable[vulkan.Image](&d.seq)
	d.views = newTable[vulkan.ImageView](&d.seq)
	d.passes = newTable[vulkan.RenderPass](&d.seq)
	d.pipelines = newTable[pipeline](&d.seq)
	d.framebuffers = newTable[vulkan.Framebuffer](&d.seq)
	d.commands = newTable[vulkan.CommandBuffer](&d.seq)
	d.semaphores = newTable[vulkan.Semaphore](&d.seq)
	d.fences = newTable[vulkan.Fence](&d.seq)
	d.buffers = newTable[buffer](&d.seq)
	defer func() {
		if err != nil {
			d.Close()
			d = nil
		}
	}()

	validation := opts.Validation && layerAvailable(validationLayer)
	if opts.Validation && !validation {
		render.Logger().Warn("validation layer not installed", "layer", validationLayer)
	}
	if err := d.createInstance(opts, validation); err != nil {
		return d, err
	}
	if validation {
		d.createDebugCallback()
	}
	if d.surface, err = opts.Surface.CreateSurface(d.instance); err != nil {
		return d, errors.Wrap(err, "create surface")
	}
	if err := d.pickPhysicalDevice(); err != nil {
		return d, err
	}
	if err := d.createDevice(); err != nil {
		return d, err
	}
	res := vulkan.CreateCommandPool(d.device, &vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.families.graphics,
	}, nil, &d.pool)
	if err := render.NewError(res); err != nil {
		return d, errors.Wrap(err, "create command pool")
	}

	render.Logger().Info("vulkan device ready",
		"gpu", d.name,
		"api", versionString(d.apiVersion),
		"graphics_family", d.families.graphics,
		"present_family", d.families.present,
		"validation", validation)
	return d, nil
}

func layerAvailable(name string) bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success || count == 0 {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vulkan.ToString(p.LayerName[:]))
	}
	return hasAll(names, []string{name})
}

func (d *Device) createInstance(opts Options, validation bool) error {
	exts := opts.Surface.RequiredInstanceExtensions()
	var layers []string
	if validation {
		exts = append(exts, "VK_EXT_debug_report")
		layers = append(layers, validationLayer)
	}
	res := vulkan.CreateInstance(&vulkan.InstanceCreateInfo{
		SType: vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vulkan.ApplicationInfo{
			SType:              vulkan.StructureTypeApplicationInfo,
			PApplicationName:   safeString(opts.AppName),
			ApplicationVersion: opts.AppVersion,
			PEngineName:        safeString(render.EngineName),
			EngineVersion:      vulkan.MakeVersion(render.EngineVersionMajor, render.EngineVersionMinor, render.EngineVersionPatch),
			ApiVersion:         vulkan.MakeVersion(1, 0, 0),
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}, nil, &d.instance)
	if err := render.NewError(res); err != nil {
		return errors.Wrap(err, "create instance")
	}
	if err := vulkan.InitInstance(d.instance); err != nil {
		return errors.Wrap(err, "init instance")
	}
	return nil
}

func (d *Device) createDebugCallback() {
	res := vulkan.CreateDebugReportCallback(d.instance, &vulkan.DebugReportCallbackCreateInfo{
		SType:       vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vulkan.DebugReportFlags(vulkan.DebugReportErrorBit | vulkan.DebugReportWarningBit),
		PfnCallback: debugReport,
	}, nil, &d.debug)
	if err := render.NewError(res); err != nil {
		render.Logger().Warn("debug report callback unavailable", "err", err)
		d.debug = vulkan.NullDebugReportCallback
	}
}

func debugReport(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vulkan.Bool32 {

	if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
		render.Logger().Error(pMessage, "layer", pLayerPrefix, "code", messageCode)
	} else {
		render.Logger().Warn(pMessage, "layer", pLayerPrefix, "code", messageCode)
	}
	return vulkan.False
}

func (d *Device) pickPhysicalDevice() error {
	var count uint32
	if err := render.NewError(vulkan.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return errors.Wrap(err, "count physical devices")
	}
	if count == 0 {
		return errors.New("vkdevice: no GPU with Vulkan support")
	}
	gpus := make([]vulkan.PhysicalDevice, count)
	if err := render.NewError(vulkan.EnumeratePhysicalDevices(d.instance, &count, gpus)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	best := -1
	for _, gpu := range gpus {
		families, ok := d.suitable(gpu)
		if !ok {
			continue
		}
		var props vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		name := vulkan.ToString(props.DeviceName[:])
		score := deviceScore(props.DeviceType)
		render.Logger().Debug("physical device", "name", name, "score", score)
		if score > best {
			best = score
			d.gpu = gpu
			d.families = families
			d.name = name
			d.apiVersion = props.ApiVersion
		}
	}
	if best < 0 {
		return errors.New("vkdevice: no GPU can present to the surface")
	}
	return nil
}

// suitable reports whether gpu has the queues, the swap chain extension
// and at least one format and present mode for the surface.
func (d *Device) suitable(gpu vulkan.PhysicalDevice) (queueFamilies, bool) {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	flags := make([]vulkan.QueueFlags, count)
	presents := make([]bool, count)
	for i := range props {
		props[i].Deref()
		flags[i] = props[i].QueueFlags
		var supported vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), d.surface, &supported)
		presents[i] = supported == vulkan.True
	}
	families, ok := pickFamilies(flags, presents)
	if !ok {
		return families, false
	}

	count = 0
	if vulkan.EnumerateDeviceExtensionProperties(gpu, "", &count, nil) != vulkan.Success {
		return families, false
	}
	exts := make([]vulkan.ExtensionProperties, count)
	vulkan.EnumerateDeviceExtensionProperties(gpu, "", &count, exts)
	names := make([]string, 0, count)
	for _, e := range exts {
		e.Deref()
		names = append(names, vulkan.ToString(e.ExtensionName[:]))
	}
	if !hasAll(names, deviceExtensions) {
		return families, false
	}

	var formats, modes uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(gpu, d.surface, &formats, nil)
	vulkan.GetPhysicalDeviceSurfacePresentModes(gpu, d.surface, &modes, nil)
	return families, formats > 0 && modes > 0
}

func (d *Device) createDevice() error {
	queues := []vulkan.DeviceQueueCreateInfo{{
		SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.families.graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if !d.families.shared() {
		queues = append(queues, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.families.present,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	res := vulkan.CreateDevice(d.gpu, &vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queues)),
		PQueueCreateInfos:       queues,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: safeStrings(deviceExtensions),
	}, nil, &d.device)
	if err := render.NewError(res); err != nil {
		return errors.Wrap(err, "create device")
	}
	vulkan.GetDeviceQueue(d.device, d.families.graphics, 0, &d.graphics)
	vulkan.GetDeviceQueue(d.device, d.families.present, 0, &d.present)
	return nil
}

// Name is the physical device name.
func (d *Device) Name() string { return d.name }

// APIVersion is the Vulkan version the physical device supports.
func (d *Device) APIVersion() string { return versionString(d.apiVersion) }

// Live counts the objects created through the device and not yet
// destroyed.
func (d *Device) Live() int {
	return d.swapchains.len() + d.views.len() + d.passes.len() + d.pipelines.len() +
		d.framebuffers.len() + d.commands.len() + d.semaphores.len() + d.fences.len() +
		d.buffers.len()
}

// Close waits for the device and destroys it with everything still
// alive. It is safe on a partially created device.
func (d *Device) Close() {
	if d.device != nil {
		vulkan.DeviceWaitIdle(d.device)
		if n := d.Live(); n > 0 {
			render.Logger().Warn("destroying leaked device objects", "count", n)
		}
		d.commands.drain(func(c vulkan.CommandBuffer) {
			vulkan.FreeCommandBuffers(d.device, d.pool, 1, []vulkan.CommandBuffer{c})
		})
		d.framebuffers.drain(func(f vulkan.Framebuffer) { vulkan.DestroyFramebuffer(d.device, f, nil) })
		d.pipelines.drain(func(p pipeline) {
			vulkan.DestroyPipeline(d.device, p.pipeline, nil)
			vulkan.DestroyPipelineLayout(d.device, p.layout, nil)
		})
		d.passes.drain(func(p vulkan.RenderPass) { vulkan.DestroyRenderPass(d.device, p, nil) })
		d.views.drain(func(v vulkan.ImageView) { vulkan.DestroyImageView(d.device, v, nil) })
		d.images.drain(func(vulkan.Image) {})
		d.swapchains.drain(func(s vulkan.Swapchain) { vulkan.DestroySwapchain(d.device, s, nil) })
		d.semaphores.drain(func(s vulkan.Semaphore) { vulkan.DestroySemaphore(d.device, s, nil) })
		d.fences.drain(func(f vulkan.Fence) { vulkan.DestroyFence(d.device, f, nil) })
		d.buffers.drain(func(b buffer) {
			vulkan.DestroyBuffer(d.device, b.buffer, nil)
			vulkan.FreeMemory(d.device, b.memory, nil)
		})
		if d.pool != vulkan.NullCommandPool {
			vulkan.DestroyCommandPool(d.device, d.pool, nil)
		}
		vulkan.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.instance != nil {
		if d.surface != vulkan.NullSurface {
			vulkan.DestroySurface(d.instance, d.surface, nil)
			d.surface = vulkan.NullSurface
		}
		if d.debug != vulkan.NullDebugReportCallback {
			vulkan.DestroyDebugReportCallback(d.instance, d.debug, nil)
			d.debug = vulkan.NullDebugReportCallback
		}
		vulkan.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}
