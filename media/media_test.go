package media

import (
	"image"
	"io"
	"sync"

	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// MOCKS

// fakeDriver is a driver has a label and keeps track of how many times it is opened and
// closed.
type fakeDriver struct {
	label    string
	priority driver.Priority
	props    []prop.Media
	reader   video.Reader

	mu          sync.Mutex
	status      driver.State
	openCount   int
	closedCount int
}

func newFakeDriver(label string, props ...prop.Media) *fakeDriver {
	return &fakeDriver{label: label, props: props, status: driver.StateClosed}
}

func (d *fakeDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCount++
	d.status = driver.StateOpened
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closedCount++
	d.status = driver.StateClosed
	return nil
}

func (d *fakeDriver) Properties() []prop.Media { return d.props }
func (d *fakeDriver) ID() string               { return d.label }
func (d *fakeDriver) Info() driver.Info        { return driver.Info{Label: d.label, Priority: d.priority} }

func (d *fakeDriver) Status() driver.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *fakeDriver) VideoRecord(p prop.Media) (video.Reader, error) {
	if d.reader == nil {
		return newFakeReader(image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420), -1), nil
	}
	return d.reader, nil
}

func (d *fakeDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCount, d.closedCount
}

// fakeReader returns the same image a fixed number of times, or forever if the limit is
// negative, and then io.EOF.
type fakeReader struct {
	img   image.Image
	limit int

	mu       sync.Mutex
	reads    int
	released int
	closed   bool
}

func newFakeReader(img image.Image, limit int) *fakeReader {
	return &fakeReader{img: img, limit: limit}
}

func (r *fakeReader) Read() (img image.Image, release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || (r.limit >= 0 && r.reads >= r.limit) {
		return nil, nil, io.EOF
	}
	r.reads++
	return r.img, func() {
		r.mu.Lock()
		r.released++
		r.mu.Unlock()
	}, nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads, r.released
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
