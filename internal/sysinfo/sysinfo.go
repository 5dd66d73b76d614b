// Package sysinfo describes the host a benchmark session ran on.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type Info struct {
	Arch     string  `json:"arch"`
	OS       string  `json:"os"`
	Hostname string  `json:"hostname,omitempty"`
	Platform string  `json:"platform,omitempty"`
	Kernel   string  `json:"kernel,omitempty"`
	CPUModel string  `json:"cpu_model,omitempty"`
	CPUCount int     `json:"cpu_count"`
	MemoryGB float64 `json:"memory_gb"`
}

// Collect gathers host facts. Probes that fail leave their fields empty;
// Collect never fails.
func Collect(ctx context.Context) Info {
	info := Info{
		Arch:     runtime.GOARCH,
		OS:       runtime.GOOS,
		CPUCount: runtime.NumCPU(),
	}
	if hostStat, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
		if hostStat.PlatformVersion != "" {
			info.Platform += " " + hostStat.PlatformVersion
		}
		info.Kernel = hostStat.KernelVersion
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUCount = n
	}
	if cpuStat, err := cpu.InfoWithContext(ctx); err == nil && len(cpuStat) > 0 {
		info.CPUModel = cpuStat[0].ModelName
	}
	if vmStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryGB = float64(vmStat.Total) / 1024 / 1024 / 1024
	}
	return info
}
