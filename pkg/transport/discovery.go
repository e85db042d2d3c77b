package transport

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// Resolve picks the port to open.
// With both USB ids configured only matching ports are candidates,
// otherwise all enumerated ports are. When name is AutoPort and ids are
// configured the first candidate wins, otherwise name must be one of the
// candidates.
func Resolve(enum Enumerator, name string, id USBID) (string, error) {
	ports, err := enum.Ports()
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, port := range ports {
		glog.V(4).Infof("port %s usb=%v id=%s", port.Name, port.USB, port.ID)
		if !id.IsValid() || port.ID == id {
			candidates = append(candidates, port.Name)
		}
	}

	if strings.EqualFold(name, AutoPort) && id.IsValid() {
		if len(candidates) == 0 {
			return "", fmt.Errorf("%w: %s, is it connected?", ErrNoMatchingDevice, id)
		}
		if len(candidates) > 1 {
			glog.V(2).Infof("multiple ports match %s: %v, using %s", id, candidates, candidates[0])
		}
		return candidates[0], nil
	}
	for _, candidate := range candidates {
		if candidate == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPortSelection, name)
}
