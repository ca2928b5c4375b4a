// Package platforms holds the destination-platform adapters: content
// constraints and resty-backed Publisher implementations.
package platforms

import (
	"time"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// Constraints is the per-platform content limit registry.
var Constraints = map[string]engine.Constraints{
	"twitter": {
		MaxLength:        280,
		HashtagLimit:     10,
		MaxVideoDuration: 140 * time.Second,
		MaxVideoBytes:    512 << 20, // 512 MB
	},
	"linkedin": {
		MaxLength:        3000,
		HashtagLimit:     30,
		MaxVideoDuration: 600 * time.Second,
		MaxVideoBytes:    5 << 30, // 5 GB
	},
}

// ConstraintsFor returns the platform's limits. Unknown platforms get the
// zero value; callers treat a zero MaxLength as "no limit enforced".
func ConstraintsFor(platform string) engine.Constraints {
	return Constraints[platform]
}
