package vosk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// ---- config frame tests ----

func TestConfigFrame_Defaults(t *testing.T) {
	g := recognizer.NewGrammar("vaca", "perro")
	frame, err := configFrame(g, recognizer.StreamConfig{})
	if err != nil {
		t.Fatalf("configFrame: %v", err)
	}

	var decoded struct {
		Config struct {
			SampleRate int      `json:"sample_rate"`
			PhraseList []string `json:"phrase_list"`
			Words      int      `json:"words"`
		} `json:"config"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	if decoded.Config.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want default 16000", decoded.Config.SampleRate)
	}
	want := []string{"vaca", "perro", recognizer.Unknown}
	if len(decoded.Config.PhraseList) != len(want) {
		t.Fatalf("phrase_list = %v, want %v", decoded.Config.PhraseList, want)
	}
	for i := range want {
		if decoded.Config.PhraseList[i] != want[i] {
			t.Errorf("phrase_list[%d] = %q, want %q", i, decoded.Config.PhraseList[i], want[i])
		}
	}
}

func TestConfigFrame_CustomSampleRate(t *testing.T) {
	g := recognizer.NewGrammar("vaca")
	frame, err := configFrame(g, recognizer.StreamConfig{SampleRate: 8000})
	if err != nil {
		t.Fatalf("configFrame: %v", err)
	}

	var decoded struct {
		Config struct {
			SampleRate int `json:"sample_rate"`
		} `json:"config"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if decoded.Config.SampleRate != 8000 {
		t.Errorf("sample_rate = %d, want 8000", decoded.Config.SampleRate)
	}
}

// ---- event parsing tests ----

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name         string
		raw          string
		wantText     string
		wantTerminal bool
		wantOK       bool
	}{
		{"partial", `{"partial": "va"}`, "va", false, true},
		{"partial with whitespace", `{"partial": " vaca "}`, "vaca", false, true},
		{"empty partial heartbeat", `{"partial": ""}`, "", false, false},
		{"final", `{"text": "vaca"}`, "vaca", true, true},
		{"final unknown", `{"text": "[unk]"}`, "[unk]", true, true},
		{"empty final maps to unknown", `{"text": ""}`, "[unk]", true, true},
		{"unrelated event", `{"spk": [0.1]}`, "", false, false},
		{"malformed json", `{"text": `, "", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, terminal, ok := parseEvent([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if res.Text != tc.wantText {
				t.Errorf("text = %q, want %q", res.Text, tc.wantText)
			}
			if terminal != tc.wantTerminal {
				t.Errorf("terminal = %v, want %v", terminal, tc.wantTerminal)
			}
			if res.Final != tc.wantTerminal {
				t.Errorf("Final flag = %v, want %v", res.Final, tc.wantTerminal)
			}
		})
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New accepted an empty server URL")
	}
}

// ---- instance lifecycle tests ----

// grammarServer emulates the server side of the protocol: it reads the config
// frame, swallows audio, and answers the eof frame with a terminal result.
func grammarServer(t *testing.T, finalText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		_, cfgFrame, err := c.Read(ctx)
		if err != nil {
			return
		}
		if !strings.Contains(string(cfgFrame), "phrase_list") {
			t.Errorf("first frame is not a config frame: %s", cfgFrame)
		}
		for {
			typ, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(msg), "eof") {
				break
			}
		}
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"text" : "`+finalText+`"}`))
		// Hold the connection until the client closes it.
		_, _, _ = c.Read(ctx)
	}))
}

// The terminal result for a Close-triggered flush arrives after the instance
// has begun shutting down; it must be delivered every time, never dropped.
func TestInstance_CloseFlushDeliversFinal(t *testing.T) {
	t.Parallel()

	srv := grammarServer(t, "vaca")
	defer srv.Close()

	p, err := New(strings.Replace(srv.URL, "http", "ws", 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for range 10 {
		inst, err := p.Start(t.Context(), recognizer.NewGrammar("vaca"), recognizer.StreamConfig{SampleRate: 16000})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := inst.SendAudio(make([]byte, 640)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
		if err := inst.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		res, ok := <-inst.Results()
		if !ok {
			t.Fatal("results closed without the flushed terminal result")
		}
		if !res.Final || res.Text != "vaca" {
			t.Fatalf("result = %+v, want final vaca", res)
		}
	}
}
