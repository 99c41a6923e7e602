package tool

import "log/slog"

// NewLeadRegistry registers the five capture tools of the qualification flow.
func NewLeadRegistry(fields FieldUpdater, offers SlotOfferer, logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, h := range []Handler{
		NewCaptureName(fields),
		NewCapturePain(fields),
		NewCaptureInterest(fields, offers),
		NewCaptureTime(fields, offers, logger),
		NewCaptureEmail(fields),
	} {
		// Stages are distinct by construction.
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
	return r
}
