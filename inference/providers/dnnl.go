// Package providers - Intel DNNL (oneDNN) execution provider.
package providers

import (
	"errors"

	ort "github.com/yalue/onnxruntime_go"
)

// DNNLProvider implements the ExecutionProvider interface.
type DNNLProvider struct {
	options DNNLProviderOptions
}

// DNNLProviderOptions contains arguments for the DNNL provider.
type DNNLProviderOptions struct {
	DeviceID int `json:"deviceID" yaml:"deviceID"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (DNNLProviderOptions) isProviderOptions() {}

// Options returns the options of the DNNL provider.
func (p *DNNLProvider) Options() ProviderOptions {
	return p.options
}

// Backend returns the backend of the DNNL provider.
func (p *DNNLProvider) Backend() ProviderBackend {
	return DNNLProviderBackend
}

// Apply reports that the runtime bindings cannot register DNNL yet, so a
// misconfigured deployment fails loudly instead of silently running on the
// default CPU path.
func (p *DNNLProvider) Apply(_ *ort.SessionOptions) error {
	return errors.New("the dnnl execution provider is not supported by the onnxruntime bindings")
}

// NewDNNLProvider creates a new DNNL provider.
func NewDNNLProvider(args DNNLProviderOptions) *DNNLProvider {
	return &DNNLProvider{options: args}
}
