package source

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/genome-heatmap/server/internal/logger"
)

// Mode is the data-source mode, resolved once at startup.
type Mode string

const (
	// ModeStandalone loads the four payload files from the data directory.
	ModeStandalone Mode = "standalone"
	// ModeRemote queries the tabular service for gene rows.
	ModeRemote Mode = "remote"
)

// contextDescriptorName is the probe resource whose mere retrievability
// selects remote mode.
const contextDescriptorName = "app-config.json"

// ContextDescriptor is the remote-mode context: an opaque dataset
// reference written by the host wrapper.
type ContextDescriptor struct {
	UPA string `json:"upa"`
}

// Detect probes for the context descriptor. Success selects remote mode
// and yields the parsed descriptor; any failure (missing resource,
// malformed content) selects standalone mode. Both outcomes are valid;
// Detect never returns an error.
func Detect(ctx context.Context, f Fetcher) (Mode, *ContextDescriptor) {
	data, err := f.Fetch(ctx, contextDescriptorName)
	if err != nil {
		logger.Debug("context descriptor not found, using standalone mode", zap.Error(err))
		return ModeStandalone, nil
	}

	var desc ContextDescriptor
	if err := json.Unmarshal(data, &desc); err != nil || desc.UPA == "" {
		logger.Warn("context descriptor unreadable, using standalone mode", zap.Error(err))
		return ModeStandalone, nil
	}

	logger.Info("context descriptor found, using remote mode", zap.String("upa", desc.UPA))
	return ModeRemote, &desc
}
