package main

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/backend/emulator"
	"github.com/born-ml/reducebench/internal/backend/webgpu"
	"github.com/born-ml/reducebench/internal/config"
	"github.com/born-ml/reducebench/internal/device"
)

// openDevice opens the configured device. With config.DeviceAuto a missing
// GPU falls back to the emulator; an explicit webgpu device must open.
func openDevice(d config.Device) (device.Session, error) {
	switch d.Kind {
	case config.DeviceEmulator:
		return openEmulator(d)
	case config.DeviceWebGPU:
		return openWebGPU(d)
	}

	if webgpu.IsAvailable() {
		sess, err := openWebGPU(d)
		if err == nil {
			return sess, nil
		}
		klog.Warningf("%v; falling back to the emulator", err)
	} else {
		klog.Infof("WebGPU not available, using the emulator")
	}
	return openEmulator(d)
}

func openWebGPU(d config.Device) (device.Session, error) {
	cfg := webgpu.DefaultConfig()
	cfg.Limits = d.Limits(cfg.Limits)
	cfg.Subgroups = d.Subgroups
	cfg.SubgroupSize = d.SubgroupSize
	sess, err := webgpu.New(cfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func openEmulator(d config.Device) (device.Session, error) {
	sess, err := emulator.New(d.Emulator())
	if err != nil {
		return nil, err
	}
	return sess, nil
}
