// Package shared provides small cross-cutting helpers used by the bus
// handlers and the admin HTTP surface.
package shared

import "strings"

// ValidateMapName enforces the admission rule: a map_name must start with
// the configured prefix. Callers on the HTTP surface turn this into a
// 400; bus handlers drop the event silently and log.
func ValidateMapName(name string) error {
	if name == "" || !strings.HasPrefix(name, AppConfig.AdmissionPrefix) {
		return ErrAdmissionRejected
	}
	return nil
}
