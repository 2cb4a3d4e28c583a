package telemetry

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"
)

// dictDoc mirrors the dictionary document the way a host parses it.
type dictDoc struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations"`
}

func buildTestDictionary(t *testing.T) *Dictionary {
	t.Helper()

	reg := NewRegistry()
	nop := func(data *[]byte) error { return nil }
	reg.Response("identify_response", "offset=%u data=%*s")
	reg.Register("identify", "offset=%u count=%c", nop)
	reg.Register("get_status", "", nop)
	reg.Response("status", "uptime=%u rpm=%i kmh=%i mode=%c")

	dict := NewDictionary(reg)
	dict.AddConstant("MCU", "rp2040")
	dict.AddConstant("CLOCK_FREQ", 1000)
	dict.AddEnumeration("mode", []string{"unlimited", "limited", "limp"})
	return dict
}

func decodeDict(t *testing.T, data []byte) dictDoc {
	t.Helper()

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Dictionary is not valid zlib: %v", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	var doc dictDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Dictionary JSON invalid: %v\n%s", err, raw)
	}
	return doc
}

func TestDictionaryCompressedRoundtrip(t *testing.T) {
	dict := buildTestDictionary(t)
	if err := dict.BuildDictionary(); err != nil {
		t.Fatalf("BuildDictionary failed: %v", err)
	}

	doc := decodeDict(t, dict.Generate())

	if doc.Version != Version {
		t.Errorf("Expected version %q, got %q", Version, doc.Version)
	}
	if doc.BuildVersions == "" {
		t.Error("Expected build_versions to be set")
	}

	if id, ok := doc.Responses["identify_response offset=%u data=%*s"]; !ok || id != 0 {
		t.Errorf("Expected identify_response at id 0, got %d (present %v)", id, ok)
	}
	if id, ok := doc.Commands["identify offset=%u count=%c"]; !ok || id != 1 {
		t.Errorf("Expected identify at id 1, got %d (present %v)", id, ok)
	}
	if id, ok := doc.Commands["get_status"]; !ok || id != 2 {
		t.Errorf("Expected get_status at id 2, got %d (present %v)", id, ok)
	}
	if id, ok := doc.Responses["status uptime=%u rpm=%i kmh=%i mode=%c"]; !ok || id != 3 {
		t.Errorf("Expected status at id 3, got %d (present %v)", id, ok)
	}

	if doc.Config["MCU"] != "rp2040" {
		t.Errorf("Expected MCU constant, got %q", doc.Config["MCU"])
	}
	// Numeric constants travel as quoted strings.
	if doc.Config["CLOCK_FREQ"] != "1000" {
		t.Errorf("Expected CLOCK_FREQ \"1000\", got %q", doc.Config["CLOCK_FREQ"])
	}

	mode := doc.Enumerations["mode"]
	if mode == nil {
		t.Fatal("Expected a mode enumeration")
	}
	if mode["unlimited"] != 0 || mode["limited"] != 1 || mode["limp"] != 2 {
		t.Errorf("Unexpected mode enumeration %v", mode)
	}
}

func TestGenerateRawBeforeBuild(t *testing.T) {
	dict := buildTestDictionary(t)

	// Without a build step Generate falls back to uncompressed JSON.
	raw := dict.Generate()
	var doc dictDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Expected raw JSON before BuildDictionary: %v\n%s", err, raw)
	}
	if doc.Version != Version {
		t.Errorf("Expected version %q, got %q", Version, doc.Version)
	}
}

func TestAddConstantInvalidatesCache(t *testing.T) {
	dict := buildTestDictionary(t)
	if err := dict.BuildDictionary(); err != nil {
		t.Fatalf("BuildDictionary failed: %v", err)
	}
	compressed := dict.Generate()

	dict.AddConstant("EXTRA", 7)
	regenerated := dict.Generate()
	if bytes.Equal(compressed, regenerated) {
		t.Error("Expected AddConstant to invalidate the cached dictionary")
	}

	if err := dict.BuildDictionary(); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	doc := decodeDict(t, dict.Generate())
	if doc.Config["EXTRA"] != "7" {
		t.Errorf("Expected EXTRA constant after rebuild, got %q", doc.Config["EXTRA"])
	}
}

func TestGetChunkBounds(t *testing.T) {
	dict := buildTestDictionary(t)
	if err := dict.BuildDictionary(); err != nil {
		t.Fatalf("BuildDictionary failed: %v", err)
	}
	data := dict.Generate()
	if len(data) < 41 {
		t.Fatalf("Dictionary unexpectedly small: %d bytes", len(data))
	}

	chunk := dict.GetChunk(0, 40)
	if !bytes.Equal(chunk, data[:40]) {
		t.Errorf("Unexpected first chunk: % X", chunk)
	}

	// The final chunk comes back short; that is how the host knows the
	// transfer is done.
	tail := dict.GetChunk(uint32(len(data)-5), 40)
	if len(tail) != 5 {
		t.Errorf("Expected a 5 byte tail chunk, got %d", len(tail))
	}
	if !bytes.Equal(tail, data[len(data)-5:]) {
		t.Errorf("Unexpected tail chunk: % X", tail)
	}

	if got := dict.GetChunk(uint32(len(data)), 10); len(got) != 0 {
		t.Errorf("Expected an empty chunk past the end, got %d bytes", len(got))
	}
}
