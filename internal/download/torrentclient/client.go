// Package torrentclient adapts anacrolix/torrent to the download.Adapter
// contract, so the orchestrator can drive BitTorrent downloads the same way
// it drives any other download client.
package torrentclient

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gotorrent "github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/logging"
)

// speedSample tracks cumulative byte counters so Status can report an
// instantaneous rate between two polls instead of a lifetime average.
type speedSample struct {
	bytesRead    int64
	bytesWritten int64
	timestamp    time.Time
}

// active is the bookkeeping kept per torrent beyond what the library tracks.
type active struct {
	torrent      *gotorrent.Torrent
	infoHash     string
	savePath     string
	addedAt      time.Time
	writeErrored bool
	errMessage   string
}

// Client adapts an anacrolix/torrent client to download.Adapter. Piece
// completion is tracked in PostgreSQL rather than the library's default
// BoltDB file, so restarts don't re-verify pieces already on disk.
type Client struct {
	client *gotorrent.Client
	db     *sql.DB
	log    *logging.Logger

	seedRatioLimit       float64
	seedTimeLimitSeconds int64

	mu       sync.RWMutex
	torrents map[string]*active // key: info hash hex

	speedMu      sync.Mutex
	speedSamples map[string]speedSample
}

// New creates a Client. cfg configures the embedded anacrolix/torrent
// client (listen port, data directory defaults, etc.); db backs piece
// completion tracking. seedRatioLimit and seedTimeLimitSeconds are stamped
// onto every Snapshot this Client produces so IsSeedingComplete can judge
// real torrents against the configured limits, not just hand-built ones in
// tests.
func New(cfg *gotorrent.ClientConfig, db *sql.DB, seedRatioLimit float64, seedTimeLimitSeconds int64, log *logging.Logger) (*Client, error) {
	cl, err := gotorrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("torrentclient: create client: %w", err)
	}
	return &Client{
		client:               cl,
		db:                   db,
		log:                  log,
		seedRatioLimit:       seedRatioLimit,
		seedTimeLimitSeconds: seedTimeLimitSeconds,
		torrents:             make(map[string]*active),
		speedSamples:         make(map[string]speedSample),
	}, nil
}

// Close drops every active torrent and shuts down the embedded client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, at := range c.torrents {
		at.torrent.Drop()
	}
	c.client.Close()
	return nil
}

// Name identifies this adapter in queue_items.client_name.
func (c *Client) Name() string { return "torrent" }

// Capabilities reports that this adapter accepts both magnet links and raw
// torrent-file bytes.
func (c *Client) Capabilities() download.Capabilities {
	return download.Capabilities{AcceptsMagnet: true, AcceptsBytes: true}
}

// Add starts a download. payload is either a magnet URI (as UTF-8 bytes) or
// raw .torrent file bytes. The returned assignedID is the torrent's info
// hash, hex-encoded, which the caller persists as queue_items.client_id.
func (c *Client) Add(ctx context.Context, payload []byte, savePath, category string, paused bool, expectedHash string) (string, error) {
	if strings.HasPrefix(string(payload), "magnet:") {
		return c.addMagnet(ctx, string(payload), savePath, paused)
	}
	return c.addTorrentFile(ctx, payload, savePath, paused)
}

func (c *Client) addMagnet(ctx context.Context, magnetURI, savePath string, paused bool) (string, error) {
	spec, err := gotorrent.TorrentSpecFromMagnetUri(magnetURI)
	if err != nil {
		return "", fmt.Errorf("torrentclient: parse magnet: %w", err)
	}

	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return "", fmt.Errorf("torrentclient: create save path: %w", err)
	}
	spec.Storage = storage.NewFileWithCompletion(savePath, NewPostgresPieceCompletion(c.db, spec.InfoHash))

	infoHash := spec.InfoHash.HexString()
	c.mu.RLock()
	if _, exists := c.torrents[infoHash]; exists {
		c.mu.RUnlock()
		return infoHash, nil
	}
	c.mu.RUnlock()

	t, _, err := c.client.AddTorrentSpec(spec)
	if err != nil {
		return "", fmt.Errorf("torrentclient: add magnet: %w", err)
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		t.Drop()
		return "", ctx.Err()
	}

	return c.register(t, infoHash, savePath, paused)
}

func (c *Client) addTorrentFile(ctx context.Context, torrentBytes []byte, savePath string, paused bool) (string, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(torrentBytes, &mi); err != nil {
		return "", fmt.Errorf("torrentclient: parse torrent file: %w", err)
	}

	infoHash := mi.HashInfoBytes().HexString()
	c.mu.RLock()
	if _, exists := c.torrents[infoHash]; exists {
		c.mu.RUnlock()
		return infoHash, nil
	}
	c.mu.RUnlock()

	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return "", fmt.Errorf("torrentclient: create save path: %w", err)
	}
	completion := NewPostgresPieceCompletion(c.db, mi.HashInfoBytes())
	fileStorage := storage.NewFileWithCompletion(savePath, completion)

	t, _, err := c.client.AddTorrentSpec(&gotorrent.TorrentSpec{
		InfoHash:  mi.HashInfoBytes(),
		InfoBytes: mi.InfoBytes,
		Trackers:  mi.UpvertedAnnounceList(),
		Storage:   fileStorage,
	})
	if err != nil {
		return "", fmt.Errorf("torrentclient: add torrent: %w", err)
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		t.Drop()
		return "", ctx.Err()
	}

	return c.register(t, infoHash, savePath, paused)
}

func (c *Client) register(t *gotorrent.Torrent, infoHash, savePath string, paused bool) (string, error) {
	at := &active{
		torrent:  t,
		infoHash: infoHash,
		savePath: savePath,
		addedAt:  time.Now(),
	}

	// A write error handler is required: the library's default one disables
	// data transfer permanently on the first disk error, which would strand
	// an item mid-download with no way to recover without re-adding it.
	t.SetOnWriteChunkError(func(err error) {
		c.mu.Lock()
		at.writeErrored = true
		at.errMessage = err.Error()
		c.mu.Unlock()
		c.log.WithError(err).WithField("info_hash", infoHash[:12]).Warn("torrent write error")
	})

	c.mu.Lock()
	c.torrents[infoHash] = at
	c.mu.Unlock()

	if paused {
		t.CancelPieces(0, t.NumPieces())
		t.SetMaxEstablishedConns(0)
	} else {
		t.DownloadAll()
	}

	return infoHash, nil
}

// Status reports the current transfer state for assignedID.
func (c *Client) Status(ctx context.Context, assignedID string) (*download.Snapshot, error) {
	c.mu.RLock()
	at, exists := c.torrents[assignedID]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("torrentclient: %s not found", assignedID)
	}
	return c.snapshot(at), nil
}

// List reports every torrent currently managed by this client.
func (c *Client) List(ctx context.Context) ([]download.ListedDownload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]download.ListedDownload, 0, len(c.torrents))
	for hash, at := range c.torrents {
		name := ""
		if info := at.torrent.Info(); info != nil {
			name = info.Name
		}
		out = append(out, download.ListedDownload{
			AssignedID: hash,
			Name:       name,
			InfoHash:   hash,
			Snapshot:   *c.snapshot(at),
		})
	}
	return out, nil
}

func (c *Client) snapshot(at *active) *download.Snapshot {
	t := at.torrent
	info := t.Info()

	var bytesTotal int64
	if info != nil {
		bytesTotal = info.TotalLength()
	}
	bytesCompleted := t.BytesCompleted()

	// Progress is reported on a [0,100] scale, matching every other adapter
	// and the queue_items.progress column, rather than the torrent library's
	// native [0,1] fraction.
	progress := 0.0
	if bytesTotal > 0 {
		progress = float64(bytesCompleted) / float64(bytesTotal) * 100
	}

	downloadSpeed, _ := c.trackSpeed(at.infoHash, t)

	state := "downloading"
	if at.writeErrored {
		state = "error"
	} else if bytesTotal > 0 && bytesCompleted >= bytesTotal {
		state = "uploading"
	}

	eta := int64(-1)
	remaining := bytesTotal - bytesCompleted
	if bytesTotal > 0 && remaining <= 0 {
		eta = 0
	} else if downloadSpeed > 0 && remaining > 0 {
		eta = remaining / downloadSpeed
	}

	var ratio float64
	stats := t.Stats()
	if bytesCompleted > 0 {
		ratio = float64(stats.BytesWrittenData.Int64()) / float64(bytesCompleted)
	}

	ratioLimit := c.seedRatioLimit
	timeLimit := c.seedTimeLimitSeconds

	return &download.Snapshot{
		State:              state,
		Progress:           progress,
		DownloadSpeedBPS:   downloadSpeed,
		ETASeconds:         eta,
		SavePath:           at.savePath,
		Ratio:              ratio,
		SeedingTimeSeconds: int64(time.Since(at.addedAt).Seconds()),
		SeedRatioLimit:     &ratioLimit,
		SeedTimeLimitSecs:  &timeLimit,
	}
}

// trackSpeed derives an instantaneous byte rate from the delta between this
// call and the previous one. Only the Status/List polling path should call
// it — anything else would corrupt the sample window.
func (c *Client) trackSpeed(infoHash string, t *gotorrent.Torrent) (down, up int64) {
	stats := t.Stats()
	currentRead := stats.BytesReadData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()
	now := time.Now()

	c.speedMu.Lock()
	defer c.speedMu.Unlock()

	prev, hasPrev := c.speedSamples[infoHash]
	c.speedSamples[infoHash] = speedSample{bytesRead: currentRead, bytesWritten: currentWritten, timestamp: now}
	if !hasPrev {
		return 0, 0
	}

	elapsed := now.Sub(prev.timestamp).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	down = int64(float64(currentRead-prev.bytesRead) / elapsed)
	up = int64(float64(currentWritten-prev.bytesWritten) / elapsed)
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}
	return down, up
}

// Pause cancels pending piece requests and blocks new peer connections. The
// torrent stays registered so Resume can pick it back up.
func (c *Client) Pause(ctx context.Context, assignedID string) error {
	c.mu.RLock()
	at, exists := c.torrents[assignedID]
	c.mu.RUnlock()
	if !exists {
		return fmt.Errorf("torrentclient: %s not found", assignedID)
	}
	t := at.torrent
	t.CancelPieces(0, t.NumPieces())
	t.SetMaxEstablishedConns(0)
	return nil
}

// Resume re-requests all pieces and restores peer connections.
func (c *Client) Resume(ctx context.Context, assignedID string) error {
	c.mu.RLock()
	at, exists := c.torrents[assignedID]
	c.mu.RUnlock()
	if !exists {
		return fmt.Errorf("torrentclient: %s not found", assignedID)
	}
	t := at.torrent
	t.SetMaxEstablishedConns(50)
	t.DownloadAll()
	return nil
}

// Remove drops the torrent. deleteFiles also removes the downloaded data
// from disk.
func (c *Client) Remove(ctx context.Context, assignedID string, deleteFiles bool) error {
	c.mu.Lock()
	at, exists := c.torrents[assignedID]
	if exists {
		delete(c.torrents, assignedID)
	}
	c.mu.Unlock()
	if !exists {
		return fmt.Errorf("torrentclient: %s not found", assignedID)
	}

	at.torrent.Drop()

	c.speedMu.Lock()
	delete(c.speedSamples, assignedID)
	c.speedMu.Unlock()

	if deleteFiles {
		if err := os.RemoveAll(at.savePath); err != nil {
			return fmt.Errorf("torrentclient: remove files: %w", err)
		}
	}
	return nil
}

// SetLocation moves a torrent's save path. The embedded torrent library has
// no in-place move primitive, so the data is relocated on disk first and the
// torrent is re-added against the new path with its existing piece
// completion state intact (completion is keyed by info hash, not path).
func (c *Client) SetLocation(ctx context.Context, assignedID, savePath string) error {
	c.mu.Lock()
	at, exists := c.torrents[assignedID]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("torrentclient: %s not found", assignedID)
	}
	oldPath := at.savePath
	delete(c.torrents, assignedID)
	c.mu.Unlock()

	at.torrent.Drop()

	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return fmt.Errorf("torrentclient: create new save path: %w", err)
	}
	if oldPath != savePath {
		if err := os.Rename(oldPath, savePath); err != nil {
			return fmt.Errorf("torrentclient: move data: %w", err)
		}
	}

	infoHash, err := metainfo.NewHashFromHex(assignedID)
	if err != nil {
		return fmt.Errorf("torrentclient: decode info hash: %w", err)
	}
	completion := NewPostgresPieceCompletion(c.db, infoHash)
	t, _, err := c.client.AddTorrentSpec(&gotorrent.TorrentSpec{
		InfoHash: infoHash,
		Storage:  storage.NewFileWithCompletion(savePath, completion),
	})
	if err != nil {
		return fmt.Errorf("torrentclient: re-add at new path: %w", err)
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err = c.register(t, assignedID, savePath, false)
	return err
}

// IsSeedingComplete reports whether snapshot has crossed the configured
// ratio or time limit. A nil limit means that dimension never completes.
func (c *Client) IsSeedingComplete(snapshot download.Snapshot) bool {
	if snapshot.SeedRatioLimit != nil && snapshot.Ratio >= *snapshot.SeedRatioLimit {
		return true
	}
	if snapshot.SeedTimeLimitSecs != nil && snapshot.SeedingTimeSeconds >= *snapshot.SeedTimeLimitSecs {
		return true
	}
	return false
}

var _ download.Adapter = (*Client)(nil)
