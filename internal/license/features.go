package license

import "context"

// AvailableFeatures returns every known feature and whether it is enabled.
// Nothing is enabled without an active license. Features reported by the
// server take precedence over the configured defaults.
func (g *Gate) AvailableFeatures(ctx context.Context) map[string]bool {
	result := make(map[string]bool, len(g.features))
	for name := range g.features {
		result[name] = false
	}

	status := g.CheckExistingLicense(ctx)
	if status == nil {
		return result
	}

	for name, enabled := range g.features {
		result[name] = enabled
	}
	for name, enabled := range status.Features {
		result[name] = enabled
	}
	return result
}

// IsFeatureAvailable reports whether name is enabled by the active license
func (g *Gate) IsFeatureAvailable(ctx context.Context, name string) bool {
	return g.AvailableFeatures(ctx)[name]
}
