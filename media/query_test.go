package media

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestParseName(t *testing.T) {
	prettyName := "Dummy video device (0x0000) (platform:v4l2loopback-000)"
	name, id := parseNameAndID(prettyName)
	test.That(t, name, test.ShouldEqual, "Dummy video device (0x0000)")
	test.That(t, id, test.ShouldEqual, "platform:v4l2loopback-000")

	prettyName = "Mac OS X: FaceTime HD Camera (Built-in) (0x1420000005ac8600)"
	name, id = parseNameAndID(prettyName)
	test.That(t, name, test.ShouldEqual, "Mac OS X: FaceTime HD Camera (Built-in)")
	test.That(t, id, test.ShouldEqual, "0x1420000005ac8600")

	prettyName = "Linux: Laptop Camera: Laptop Camera (video0)"
	name, id = parseNameAndID(prettyName)
	test.That(t, name, test.ShouldEqual, "Linux: Laptop Camera: Laptop Camera")
	test.That(t, id, test.ShouldEqual, "video0")

	for _, bad := range []string{
		"ERROR: camera name ok but no parenthesis ",
		"ERROR: camera name ok but no ID ()",
		" (ERROR: ID ok but no name)",
		"ERROR: camera name ok but (ID has no close parenthesis",
		"ERROR: camera name ok but ID has no open parenthesis)",
	} {
		name, id = parseNameAndID(bad)
		test.That(t, name, test.ShouldBeZeroValue)
		test.That(t, id, test.ShouldBeZeroValue)
	}
}

func TestSelectBestDriver(t *testing.T) {
	logger := golog.NewTestLogger(t)
	vga := prop.Media{Video: prop.Video{Width: 640, Height: 480}}
	hd := prop.Media{Video: prop.Video{Width: 1280, Height: 720}}
	small := newFakeDriver("small", vga)
	large := newFakeDriver("large", hd)
	candidates := map[driver.Driver][]prop.Media{
		small: small.props,
		large: large.props,
	}

	t.Run("ties pick the lowest label", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			best, selected, err := selectBestDriverFrom(candidates, mediadevices.MediaTrackConstraints{}, logger)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, best, test.ShouldEqual, large)
			test.That(t, selected.Width, test.ShouldEqual, 1280)
			test.That(t, selected.Height, test.ShouldEqual, 720)
		}
	})

	t.Run("ranges exclude drivers", func(t *testing.T) {
		var constraints mediadevices.MediaTrackConstraints
		constraints.Width = prop.IntRanged{Min: 0, Max: 800}
		best, selected, err := selectBestDriverFrom(candidates, constraints, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, best, test.ShouldEqual, small)
		test.That(t, selected.Width, test.ShouldEqual, 640)

		constraints.Width = prop.IntRanged{Min: 1000, Max: 4096}
		best, _, err = selectBestDriverFrom(candidates, constraints, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, best, test.ShouldEqual, large)

		constraints.Width = prop.IntRanged{Min: 2000, Max: 4096}
		_, _, err = selectBestDriverFrom(candidates, constraints, logger)
		test.That(t, err, test.ShouldBeError, ErrNotFound)
	})
}

func TestCandidateOrdering(t *testing.T) {
	a := candidate{driver: newFakeDriver("a"), score: 1}
	b := candidate{driver: newFakeDriver("b"), score: 0.5}
	test.That(t, b.betterThan(a), test.ShouldBeTrue)
	test.That(t, a.betterThan(b), test.ShouldBeFalse)
	b.score = 1
	test.That(t, a.betterThan(b), test.ShouldBeTrue)
	test.That(t, b.betterThan(a), test.ShouldBeFalse)
	test.That(t, a.betterThan(a), test.ShouldBeFalse)
}

func TestSessionDriverReferences(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d := newFakeDriver("/dev/fake")
	media := prop.Media{Video: prop.Video{Width: 2, Height: 2}}

	first, err := NewSessionForDriver(d, media, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Properties(), test.ShouldResemble, media)
	openCount, closedCount := d.counts()
	test.That(t, openCount, test.ShouldEqual, 1)
	test.That(t, closedCount, test.ShouldEqual, 0)

	// the driver is already open so it gets reopened for the second session
	second, err := NewSessionForDriver(d, media, logger)
	test.That(t, err, test.ShouldBeNil)
	openCount, closedCount = d.counts()
	test.That(t, openCount, test.ShouldEqual, 2)
	test.That(t, closedCount, test.ShouldEqual, 1)

	err = first.Close(context.Background())
	var inUse *DriverInUseError
	test.That(t, errors.As(err, &inUse), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "/dev/fake")
	_, closedCount = d.counts()
	test.That(t, closedCount, test.ShouldEqual, 1)

	test.That(t, second.Close(context.Background()), test.ShouldBeNil)
	_, closedCount = d.counts()
	test.That(t, closedCount, test.ShouldEqual, 2)
	test.That(t, second.Close(context.Background()), test.ShouldBeNil)
}
