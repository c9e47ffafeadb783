// Package providers - CPU based execution provider.
package providers

import (
	ort "github.com/yalue/onnxruntime_go"
)

// CPUProvider is the always-available fallback provider.
type CPUProvider struct {
	options CPUOptions
}

// CPUOptions contains arguments for the CPU provider.
type CPUOptions struct {
	// UseArena enables the CPU memory arena.
	UseArena bool `json:"useArena" yaml:"useArena"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CPUOptions) isProviderOptions() {}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// Apply is a no-op: the CPU provider is the runtime default and needs no
// registration.
func (p *CPUProvider) Apply(_ *ort.SessionOptions) error {
	return nil
}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider(options CPUOptions) *CPUProvider {
	return &CPUProvider{options: options}
}
