package google

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

func wav(pcm []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	b.Write(make([]byte, 16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func TestStripWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"wav", wav(pcm), pcm},
		{"raw", pcm, pcm},
		{"short", []byte("RIFF"), []byte("RIFF")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripWAVHeader(tt.in); !bytes.Equal(got, tt.want) {
				t.Errorf("stripWAVHeader = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	pcm := []byte{9, 8, 7, 6}
	var got googleSynthRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(googleSynthResponse{AudioContent: base64.StdEncoding.EncodeToString(wav(pcm))})
	}))
	defer ts.Close()

	tts, err := registry.TTS.Create("google", map[string]string{"api_key": "gk", "base_url": ts.URL})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	audio, err := tts.Synthesize(t.Context(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Voice.Name != defaultVoice {
		t.Errorf("voice = %q, want %q", got.Voice.Name, defaultVoice)
	}
	if audio.Encoding != engine.EncodingPCM || audio.SampleRate != defaultSampleRate || audio.Channels != 1 {
		t.Errorf("format = %+v", audio)
	}
	if !bytes.Equal(audio.Data, pcm) {
		t.Errorf("data = %v, want %v", audio.Data, pcm)
	}
}
