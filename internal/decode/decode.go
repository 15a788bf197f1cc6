// Package decode selects the payload decoder for a provider. Field-mapping
// quirks stay inside one decoder per provider instead of branching through
// the pipeline.
package decode

import (
	"example.com/trainlog/internal/domain"
	"example.com/trainlog/internal/fitcodec"
	"example.com/trainlog/internal/provider/garmin"
)

// Func decodes one raw payload into the normalized form.
type Func func([]byte) (domain.DecodedActivity, error)

// Registry dispatches payloads to the decoder registered for their
// provider tag.
type Registry struct {
	byProvider map[domain.Provider]Func
}

// NewRegistry wires the default decoders. Garmin payloads are either a JSON
// summary document or an original FIT export, sniffed by magic bytes.
func NewRegistry() *Registry {
	return &Registry{
		byProvider: map[domain.Provider]Func{
			domain.ProviderGarmin: decodeGarmin,
		},
	}
}

// Register adds or replaces the decoder for a provider.
func (r *Registry) Register(provider domain.Provider, fn Func) {
	r.byProvider[provider] = fn
}

// Decode runs the provider's decoder over the payload.
func (r *Registry) Decode(provider domain.Provider, payload []byte) (domain.DecodedActivity, error) {
	fn, ok := r.byProvider[provider]
	if !ok {
		return domain.DecodedActivity{}, &domain.DecodeError{Reason: "no decoder registered for provider " + string(provider)}
	}
	return fn(payload)
}

func decodeGarmin(payload []byte) (domain.DecodedActivity, error) {
	if fitcodec.IsFIT(payload) {
		return fitcodec.Decode(payload)
	}
	return garmin.DecodeSummary(payload)
}
