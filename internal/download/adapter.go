// Package download defines the DownloadClientAdapter capability, the
// PathMapper between the orchestrator's and the client's views of
// storage, the HTTP source-fetch bridge, and artifact location.
package download

import "context"

// Snapshot is the client's view of an in-flight or finished download.
type Snapshot struct {
	State              string // queued|downloading|uploading|stalled|error|missing
	Progress           float64
	DownloadSpeedBPS   int64
	ETASeconds         int64 // -1 if unknown
	SavePath           string
	Ratio              float64
	SeedingTimeSeconds int64
	SeedRatioLimit     *float64
	SeedTimeLimitSecs  *int64
}

// ListedDownload is one entry returned by Adapter.List, used for post-hoc
// hash discovery when Add did not return an assigned id synchronously.
type ListedDownload struct {
	AssignedID string
	Name       string
	InfoHash   string
	Snapshot   Snapshot
}

// Capabilities describes what an adapter can accept, used to choose among
// several registered adapters for a kind=torrent item.
type Capabilities struct {
	AcceptsMagnet bool
	AcceptsBytes  bool
}

// Adapter is the pluggable contract to an external torrent client. The
// core never talks to a client's native protocol directly.
type Adapter interface {
	Name() string
	Capabilities() Capabilities
	Add(ctx context.Context, sourceURLOrMagnetOrBytes []byte, savePath, category string, paused bool, expectedHash string) (assignedID string, err error)
	Status(ctx context.Context, assignedID string) (*Snapshot, error)
	List(ctx context.Context) ([]ListedDownload, error)
	Pause(ctx context.Context, assignedID string) error
	Resume(ctx context.Context, assignedID string) error
	Remove(ctx context.Context, assignedID string, deleteFiles bool) error
	SetLocation(ctx context.Context, assignedID, savePath string) error
	IsSeedingComplete(snapshot Snapshot) bool
}

// SelectAdapter returns the first registered adapter matching the kind of
// submission being made (magnet vs. raw bytes). Adapted from the original
// system's client-selection logic: with only one registered client this
// degenerates to "use it", but the declared-capability check matters once
// more than one client adapter is registered.
func SelectAdapter(adapters []Adapter, needsMagnet bool) (Adapter, bool) {
	for _, a := range adapters {
		caps := a.Capabilities()
		if needsMagnet && caps.AcceptsMagnet {
			return a, true
		}
		if !needsMagnet && caps.AcceptsBytes {
			return a, true
		}
	}
	return nil, false
}
