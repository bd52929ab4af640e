package download

import (
	"context"
	"testing"
)

func TestHasAudioExtensionCaseInsensitive(t *testing.T) {
	cases := map[string]bool{
		"book.M4B":    true,
		"book.m4b":    true,
		"book.mp3":    true,
		"cover.jpg":   false,
		"notes.txt":   false,
		"archive.AAX": true,
	}
	for name, want := range cases {
		if got := hasAudioExtension(name); got != want {
			t.Errorf("hasAudioExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSelectAdapterByCapability(t *testing.T) {
	magnetOnly := &fakeAdapter{name: "magnet-client", caps: Capabilities{AcceptsMagnet: true}}
	bytesOnly := &fakeAdapter{name: "upload-client", caps: Capabilities{AcceptsBytes: true}}

	a, ok := SelectAdapter([]Adapter{magnetOnly, bytesOnly}, true)
	if !ok || a.Name() != "magnet-client" {
		t.Errorf("expected magnet-client selected, got %v ok=%v", a, ok)
	}

	b, ok := SelectAdapter([]Adapter{magnetOnly, bytesOnly}, false)
	if !ok || b.Name() != "upload-client" {
		t.Errorf("expected upload-client selected, got %v ok=%v", b, ok)
	}
}

// fakeAdapter satisfies Adapter for SelectAdapter tests only; every
// operation beyond Name/Capabilities is unused here.
type fakeAdapter struct {
	name string
	caps Capabilities
}

func (f *fakeAdapter) Name() string              { return f.name }
func (f *fakeAdapter) Capabilities() Capabilities { return f.caps }
func (f *fakeAdapter) Add(ctx context.Context, b []byte, savePath, category string, paused bool, expectedHash string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) Status(ctx context.Context, assignedID string) (*Snapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) List(ctx context.Context) ([]ListedDownload, error) { return nil, nil }
func (f *fakeAdapter) Pause(ctx context.Context, assignedID string) error  { return nil }
func (f *fakeAdapter) Resume(ctx context.Context, assignedID string) error { return nil }
func (f *fakeAdapter) Remove(ctx context.Context, assignedID string, deleteFiles bool) error {
	return nil
}
func (f *fakeAdapter) SetLocation(ctx context.Context, assignedID, savePath string) error {
	return nil
}
func (f *fakeAdapter) IsSeedingComplete(snapshot Snapshot) bool { return false }
