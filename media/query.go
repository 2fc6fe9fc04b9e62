package media

import (
	"regexp"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
)

// below adapted from github.com/pion/mediadevices

// ErrNotFound happens when there is no driver found in a query.
var ErrNotFound = errors.New("failed to find the best driver that fits the constraints")

// DefaultConstraints are suitable for finding any available camera. Formats that decode
// to 4:2:0 YCbCr come first since they reach the GPU without a colour space round trip.
var DefaultConstraints = mediadevices.MediaStreamConstraints{
	Video: func(constraint *mediadevices.MediaTrackConstraints) {
		constraint.Width = prop.IntRanged{Min: 320, Max: 4096, Ideal: 1280}
		constraint.Height = prop.IntRanged{Min: 240, Max: 2160, Ideal: 720}
		constraint.FrameRate = prop.FloatRanged{Min: 0, Max: 120, Ideal: 30}
		constraint.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatNV12,
			frame.FormatI420,
			frame.FormatYUY2,
			frame.FormatUYVY,
			frame.FormatMJPEG,
			frame.FormatRGBA,
		}
	},
}

// DeviceInfo describes a camera driver.
type DeviceInfo struct {
	ID         string
	Name       string
	Labels     []string
	Properties []prop.Media
	Priority   driver.Priority
	Error      error
}

// QueryVideoDevices lists all known cameras. Screens are excluded.
func QueryVideoDevices() []DeviceInfo {
	return getDriverInfo(driver.GetManager().Query(getVideoFilterBase()))
}

func getDriverInfo(drivers []driver.Driver) []DeviceInfo {
	infos := make([]DeviceInfo, len(drivers))
	for i, d := range drivers {
		if d.Status() == driver.StateClosed {
			if err := d.Open(); err != nil {
				infos[i].Error = err
			} else {
				defer func() {
					infos[i].Error = d.Close()
				}()
			}
		}
		infos[i].ID = d.ID()
		infos[i].Labels = getDriverLabels(d)
		infos[i].Name, _ = parseNameAndID(d.Info().Label)
		infos[i].Properties = d.Properties()
		infos[i].Priority = d.Info().Priority
	}
	return infos
}

func getDriverLabels(d driver.Driver) []string {
	return strings.Split(d.Info().Label, camera.LabelSeparator)
}

// parseNameAndID splits a label of the form "name (id)". Both parts must be present.
func parseNameAndID(label string) (string, string) {
	if !strings.HasSuffix(label, ")") {
		return "", ""
	}
	open := strings.LastIndex(label, "(")
	if open < 0 {
		return "", ""
	}
	id := label[open+1 : len(label)-1]
	name := strings.TrimSpace(label[:open])
	if id == "" || name == "" {
		return "", ""
	}
	return name, id
}

// GetAnyVideoSession opens a session on the best camera satisfying constraints.
func GetAnyVideoSession(constraints mediadevices.MediaStreamConstraints, logger golog.Logger) (*Session, error) {
	d, selectedMedia, err := getUserVideoDriver(constraints, getVideoFilterBase(), logger)
	if err != nil {
		return nil, err
	}
	return NewSessionForDriver(d, selectedMedia, logger)
}

// GetNamedVideoSession opens a session on the camera with the given label.
func GetNamedVideoSession(
	name string,
	constraints mediadevices.MediaStreamConstraints,
	logger golog.Logger,
) (*Session, error) {
	filter := driver.FilterAnd(getVideoFilterBase(), labelFilter(name))
	d, selectedMedia, err := getUserVideoDriver(constraints, filter, logger)
	if err != nil {
		return nil, err
	}
	return NewSessionForDriver(d, selectedMedia, logger)
}

// GetPatternedVideoSession opens a session on the first camera whose label matches.
func GetPatternedVideoSession(
	labelPattern *regexp.Regexp,
	constraints mediadevices.MediaStreamConstraints,
	logger golog.Logger,
) (*Session, error) {
	filter := driver.FilterAnd(getVideoFilterBase(), labelFilterPattern(labelPattern))
	d, selectedMedia, err := getUserVideoDriver(constraints, filter, logger)
	if err != nil {
		return nil, err
	}
	return NewSessionForDriver(d, selectedMedia, logger)
}

func getUserVideoDriver(
	constraints mediadevices.MediaStreamConstraints,
	filter driver.FilterFn,
	logger golog.Logger,
) (driver.Driver, prop.Media, error) {
	if logger == nil {
		logger = golog.Global().Named("media")
	}
	var videoConstraints mediadevices.MediaTrackConstraints
	if constraints.Video != nil {
		constraints.Video(&videoConstraints)
	}
	return selectBestDriver(filter, videoConstraints, logger)
}

func labelFilter(target string) driver.FilterFn {
	return driver.FilterFn(func(d driver.Driver) bool {
		for _, label := range getDriverLabels(d) {
			if label == target {
				return true
			}
		}
		return false
	})
}

func labelFilterPattern(labelPattern *regexp.Regexp) driver.FilterFn {
	return driver.FilterFn(func(d driver.Driver) bool {
		for _, label := range getDriverLabels(d) {
			if labelPattern.MatchString(label) {
				return true
			}
		}
		return false
	})
}

func getVideoFilterBase() driver.FilterFn {
	typeFilter := driver.FilterVideoRecorder()
	notScreenFilter := driver.FilterNot(driver.FilterDeviceType(driver.Screen))
	return driver.FilterAnd(typeFilter, notScreenFilter)
}

// selectBestDriver implements the SelectSettings algorithm.
// Reference: https://w3c.github.io/mediacapture-main/#dfn-selectsettings
func selectBestDriver(
	filter driver.FilterFn,
	constraints mediadevices.MediaTrackConstraints,
	logger golog.Logger,
) (driver.Driver, prop.Media, error) {
	return selectBestDriverFrom(queryDriverProperties(filter, logger), constraints, logger)
}

func selectBestDriverFrom(
	driverProperties map[driver.Driver][]prop.Media,
	constraints mediadevices.MediaTrackConstraints,
	logger golog.Logger,
) (driver.Driver, prop.Media, error) {
	var best *candidate
	considered := 0
	for d, props := range driverProperties {
		for _, p := range props {
			c, ok := scoreCandidate(d, p, constraints)
			if !ok {
				continue
			}
			considered++
			if best == nil || c.betterThan(*best) {
				best = &c
			}
		}
	}
	if best == nil {
		return nil, prop.Media{}, ErrNotFound
	}

	logger.Debugw("selected driver", "label", best.driver.Info().Label, "score", best.score, "candidates", considered)
	selectedMedia := prop.Media{}
	selectedMedia.MergeConstraints(constraints.MediaConstraints)
	selectedMedia.Merge(best.media)
	return best.driver, selectedMedia, nil
}

// A candidate is one set of driver properties satisfying the constraints. Lower scores
// are better.
type candidate struct {
	driver driver.Driver
	media  prop.Media
	score  float64
}

func scoreCandidate(d driver.Driver, p prop.Media, constraints mediadevices.MediaTrackConstraints) (candidate, bool) {
	dist, ok := constraints.MediaConstraints.FitnessDistance(p)
	if !ok {
		return candidate{}, false
	}
	return candidate{driver: d, media: p, score: dist - float64(d.Info().Priority)}, true
}

// betterThan breaks score ties by label so selection does not depend on map order.
func (c candidate) betterThan(other candidate) bool {
	if c.score != other.score {
		return c.score < other.score
	}
	return c.driver.Info().Label < other.driver.Info().Label
}

func queryDriverProperties(filter driver.FilterFn, logger golog.Logger) map[driver.Driver][]prop.Media {
	m := make(map[driver.Driver][]prop.Media)
	for _, d := range driver.GetManager().Query(filter) {
		props, err := readDriverProperties(d)
		if err != nil {
			logger.Debugw("querying driver", "label", d.Info().Label, "error", err)
		}
		if len(props) != 0 {
			m[d] = props
		}
	}
	return m
}

// readDriverProperties opens a closed driver just long enough to read its properties.
func readDriverProperties(d driver.Driver) ([]prop.Media, error) {
	if d.Status() != driver.StateClosed {
		return d.Properties(), nil
	}
	if err := d.Open(); err != nil {
		return nil, errors.Wrap(err, "opening driver")
	}
	props := d.Properties()
	return props, errors.Wrap(d.Close(), "closing driver")
}
