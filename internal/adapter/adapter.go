// Package adapter loads project-specific fine-tuning artifacts.
//
// An adapter is a small artifact layered on a shared base model. The
// Loader validates the artifact's manifest and hands the weights off
// to the inference runtime; projects without a trained adapter fall
// back to the base model rather than failing activation.
package adapter

import (
	"time"
)

// Adapter is a ready-to-use reference to a loaded adapter.
type Adapter struct {
	// ProjectID is the owning project.
	ProjectID string `json:"project_id"`

	// Name is the adapter's human-readable name from the manifest.
	Name string `json:"name"`

	// BaseModel is the model the adapter was trained against.
	BaseModel string `json:"base_model"`

	// Path is the artifact directory on disk. Empty for the base-model
	// fallback.
	Path string `json:"path"`

	// Base is true when the project has no trained adapter and the
	// base model is used unmodified.
	Base bool `json:"base"`

	// LoadedAt is when the adapter was materialized.
	LoadedAt time.Time `json:"loaded_at"`
}

// Manifest describes an adapter artifact on disk.
type Manifest struct {
	Name          string `json:"name"`
	BaseModel     string `json:"base_model"`
	FormatVersion int    `json:"format_version"`
	WeightsFile   string `json:"weights_file"`
	SizeBytes     int64  `json:"size_bytes"`
}

// manifestFileName is the per-artifact metadata file.
const manifestFileName = "manifest.json"

// supportedFormatVersion is the artifact format this build can load.
const supportedFormatVersion = 1
