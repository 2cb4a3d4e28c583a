package mon

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DeviceInfo is the decoded identity dictionary. Command and response
// keys are full format strings; IDs are assigned by the firmware in
// registration order.
type DeviceInfo struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations"`
}

// ParseDictionary decodes the raw dictionary blob as fetched through
// identify. The firmware deflates it; a build whose compressor failed
// ships plain JSON instead, so that is accepted too.
func ParseDictionary(raw []byte) (*DeviceInfo, error) {
	plain := raw
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		plain, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
	}

	var info DeviceInfo
	if err := json.Unmarshal(plain, &info); err != nil {
		return nil, fmt.Errorf("decode dictionary json: %w", err)
	}
	return &info, nil
}

// CommandID resolves a command by bare name. The dictionary keys carry
// the argument list; the name is the first token.
func (i *DeviceInfo) CommandID(name string) (uint16, bool) {
	return findByName(i.Commands, name)
}

// ResponseID resolves a response by bare name.
func (i *DeviceInfo) ResponseID(name string) (uint16, bool) {
	return findByName(i.Responses, name)
}

// ResponseNames maps wire IDs back to bare response names.
func (i *DeviceInfo) ResponseNames() map[uint16]string {
	out := make(map[uint16]string, len(i.Responses))
	for key, id := range i.Responses {
		out[uint16(id)] = nameOf(key)
	}
	return out
}

// EnumNames flattens an enumeration into an index-ordered name table.
// Values outside the table fall back to their numeric form at the call
// site.
func (i *DeviceInfo) EnumNames(enum string) []string {
	values, ok := i.Enumerations[enum]
	if !ok {
		return nil
	}
	max := -1
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	out := make([]string, max+1)
	for name, v := range values {
		if v >= 0 {
			out[v] = name
		}
	}
	return out
}

func findByName(set map[string]int, name string) (uint16, bool) {
	for key, id := range set {
		if nameOf(key) == name {
			return uint16(id), true
		}
	}
	return 0, false
}

func nameOf(format string) string {
	if i := strings.IndexByte(format, ' '); i >= 0 {
		return format[:i]
	}
	return format
}
