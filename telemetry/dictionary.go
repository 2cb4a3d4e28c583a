package telemetry

import (
	"bytes"
	"strconv"
	"sync"

	"mopo/tinycompress"
)

// Dictionary is the self-description the host fetches over the identify
// exchange: firmware version, constants, the message vocabulary with
// wire IDs, and value enumerations, serialized as JSON and compressed.
type Dictionary struct {
	mu            sync.RWMutex
	registry      *Registry
	version       string
	buildVersions string
	constants     map[string]interface{}
	enumerations  map[string][]string
	cached        []byte
}

// NewDictionary builds an empty dictionary over a registry.
func NewDictionary(reg *Registry) *Dictionary {
	return &Dictionary{
		registry:      reg,
		version:       Version,
		buildVersions: "go-tinygo",
		constants:     make(map[string]interface{}),
		enumerations:  make(map[string][]string),
	}
}

// AddConstant exposes one firmware constant to the host.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.cached = nil
}

// AddEnumeration exposes a value-to-name table, index keyed. The slice
// is copied; on TinyGo the caller's backing array may not outlive the
// call.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = valuesCopy
	d.cached = nil
}

// BuildDictionary serializes, compresses and caches the dictionary.
// Call it once everything is registered. On a compression failure the
// raw JSON is cached instead; the host tools fall back to parsing that.
func (d *Dictionary) BuildDictionary() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSONLocked()

	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	if _, err := w.Write(jsonData); err != nil {
		d.cached = jsonData
		return err
	}
	if err := w.Close(); err != nil {
		d.cached = jsonData
		return err
	}

	compressed := buf.Bytes()
	d.cached = make([]byte, len(compressed))
	copy(d.cached, compressed)
	return nil
}

// Generate returns the dictionary bytes, compressed when
// BuildDictionary has run, raw JSON otherwise.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked()
}

// GetChunk returns up to count bytes of the dictionary starting at
// offset. Always a copy; on TinyGo a slice of the cache must not escape
// into transmission buffers.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if len(data) == 0 || offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// buildJSONLocked assembles the JSON by hand. encoding/json costs too
// much flash on the firmware build for a document this rigid.
func (d *Dictionary) buildJSONLocked() []byte {
	msgs := d.registry.Ordered()

	result := make([]byte, 0, 1024)
	result = append(result, `{"version":"`...)
	result = append(result, d.version...)
	result = append(result, `","build_versions":"`...)
	result = append(result, d.buildVersions...)
	result = append(result, `","config":{`...)

	constNames := make([]string, 0, len(d.constants))
	for name := range d.constants {
		constNames = append(constNames, name)
	}
	sortNames(constNames)

	for i, name := range constNames {
		if i > 0 {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, name...)
		result = append(result, `":"`...)
		result = append(result, valueToString(d.constants[name])...)
		result = append(result, '"')
	}
	result = append(result, `},"commands":{`...)

	first := true
	for _, m := range msgs {
		if m.Handler == nil {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		first = false
		result = append(result, '"')
		result = append(result, formatKey(m)...)
		result = append(result, `":`...)
		result = append(result, strconv.Itoa(int(m.ID))...)
	}
	result = append(result, `},"responses":{`...)

	first = true
	for _, m := range msgs {
		if m.Handler != nil {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		first = false
		result = append(result, '"')
		result = append(result, formatKey(m)...)
		result = append(result, `":`...)
		result = append(result, strconv.Itoa(int(m.ID))...)
	}
	result = append(result, '}')

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)

		enumNames := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enumNames = append(enumNames, name)
		}
		sortNames(enumNames)

		for i, name := range enumNames {
			if i > 0 {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, name...)
			result = append(result, `":{`...)

			firstValue := true
			for idx, value := range d.enumerations[name] {
				if value == "" {
					continue
				}
				if !firstValue {
					result = append(result, ',')
				}
				firstValue = false
				result = append(result, '"')
				result = append(result, value...)
				result = append(result, `":`...)
				result = append(result, strconv.Itoa(idx)...)
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	result = append(result, '}')
	return result
}

// formatKey is the dictionary key for one message: the name, followed
// by the parameter format when there is one.
func formatKey(m *Message) string {
	if m.Format == "" {
		return m.Name
	}
	return m.Name + " " + m.Format
}

// sortNames orders keys so repeated builds emit identical bytes.
func sortNames(names []string) {
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[i] > names[j] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
}

func valueToString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
