// Package edge provides a TTS provider backed by the Microsoft Edge
// read-aloud service. It implements the tts.Provider interface.
//
// The service is the one the Edge browser uses for its read-aloud feature:
// keyless, with several hundred neural voices across roughly a hundred
// locales, which makes it the pipeline's default synthesis backend. Each
// Synthesize call opens a WebSocket, sends a speech.config message followed
// by an SSML request, and collects binary audio frames until the service
// signals turn.end.
//
// Rate and pitch offsets are rendered into the SSML prosody element, so the
// caller's sync loop can re-render a segment faster or slower to match the
// original timing.
package edge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/redub/pkg/audio"
	"github.com/MrWong99/redub/pkg/provider/tts"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	defaultEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

	// trustedClientToken is the fixed token the Edge browser itself sends;
	// the service rejects connections without it.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	secMSGECVersion    = "1-130.0.2849.68"

	origin    = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"

	outputFormat = "audio-24khz-48kbitrate-mono-mp3"

	// maxMessageBytes raises the connection read limit above the library
	// default of 32 KiB; audio frames for longer segments exceed that.
	maxMessageBytes = 1 << 20
)

// Option is a functional option for configuring the edge Provider.
type Option func(*Provider)

// WithEndpoint overrides the WebSocket endpoint. Used by tests to point the
// provider at a local server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements tts.Provider backed by the Edge read-aloud service.
type Provider struct {
	endpoint string
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new edge Provider. The service needs no credentials, so
// construction cannot fail.
func New(opts ...Option) *Provider {
	p := &Provider{endpoint: defaultEndpoint}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format returns the container format of rendered clips.
func (p *Provider) Format() string {
	return "mp3"
}

// Synthesize renders req.Text over a fresh WebSocket connection and writes
// the MP3 clip to req.OutPath.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("edge: %w", err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxMessageBytes)

	if err := conn.Write(ctx, websocket.MessageText, configMessage(time.Now())); err != nil {
		return nil, fmt.Errorf("edge: send speech.config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, ssmlMessage(req, time.Now())); err != nil {
		return nil, fmt.Errorf("edge: send ssml: %w", err)
	}

	data, err := collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("edge: no audio returned for voice %q", req.Voice)
	}

	if err := os.WriteFile(req.OutPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("edge: write clip: %w", err)
	}
	duration, err := audio.ClipDuration(req.OutPath)
	if err != nil {
		return nil, fmt.Errorf("edge: rendered clip unreadable: %w", err)
	}
	return &tts.Clip{Path: req.OutPath, Duration: duration}, nil
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	query := url.Values{}
	query.Set("TrustedClientToken", trustedClientToken)
	query.Set("Sec-MS-GEC", secMSGEC(time.Now()))
	query.Set("Sec-MS-GEC-Version", secMSGECVersion)
	query.Set("ConnectionId", requestID())

	header := http.Header{}
	header.Set("Origin", origin)
	header.Set("User-Agent", userAgent)

	conn, _, err := websocket.Dial(ctx, p.endpoint+"?"+query.Encode(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("edge: dial: %w", err)
	}
	return conn, nil
}

// collectAudio reads messages until the service signals turn.end, appending
// the payload of every binary audio frame.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf bytes.Buffer
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("edge: read: %w", err)
		}
		switch typ {
		case websocket.MessageText:
			if messagePath(msg) == "turn.end" {
				return buf.Bytes(), nil
			}
		case websocket.MessageBinary:
			payload, err := binaryAudio(msg)
			if err != nil {
				return nil, fmt.Errorf("edge: %w", err)
			}
			buf.Write(payload)
		}
	}
}

// ---- protocol messages ----

func configMessage(now time.Time) []byte {
	const config = `{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + outputFormat + `"}}}}`
	return []byte("X-Timestamp:" + timestamp(now) +
		"\r\nContent-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n" +
		config)
}

func ssmlMessage(req tts.Request, now time.Time) []byte {
	return []byte("X-RequestId:" + requestID() +
		"\r\nContent-Type:application/ssml+xml\r\nX-Timestamp:" + timestamp(now) +
		"\r\nPath:ssml\r\n\r\n" +
		ssml(req))
}

func ssml(req tts.Request) string {
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>"+
		"<voice name='%s'><prosody pitch='%s' rate='%s' volume='+0%%'>%s</prosody></voice></speak>",
		voiceLocale(req.Voice), req.Voice, formatPitch(req.PitchHz), formatRate(req.RatePct),
		xmlEscaper.Replace(req.Text))
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// formatRate renders a rate offset the way the service expects, with an
// explicit sign: "+20%", "-10%", "+0%".
func formatRate(pct int) string {
	return fmt.Sprintf("%+d%%", pct)
}

func formatPitch(hz int) string {
	return fmt.Sprintf("%+dHz", hz)
}

// voiceLocale extracts the locale from a voice name, e.g. "es-MX" from
// "es-MX-JorgeNeural". Names without a locale prefix fall back to en-US.
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

// ---- message parsing ----

// messagePath returns the value of the Path header of a text message, or ""
// when the message carries none.
func messagePath(msg []byte) string {
	head, _, _ := strings.Cut(string(msg), "\r\n\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// binaryAudio extracts the audio payload from a binary message. The first
// two bytes are a big-endian header length; the payload follows the header.
// Binary frames whose header is not Path:audio are skipped with a nil
// payload.
func binaryAudio(msg []byte) ([]byte, error) {
	if len(msg) < 2 {
		return nil, errors.New("binary message too short")
	}
	headLen := int(binary.BigEndian.Uint16(msg))
	if 2+headLen > len(msg) {
		return nil, fmt.Errorf("binary message header length %d exceeds %d data bytes", headLen, len(msg)-2)
	}
	if !strings.Contains(string(msg[2:2+headLen]), "Path:audio") {
		return nil, nil
	}
	return msg[2+headLen:], nil
}

// ---- request headers ----

// timestamp renders the X-Timestamp header value in the Edge browser's
// JavaScript date format.
func timestamp(now time.Time) string {
	return now.UTC().Format("Mon Jan 02 2006 15:04:05") + " GMT+0000 (Coordinated Universal Time)"
}

// secMSGEC computes the Sec-MS-GEC query parameter: the uppercase SHA-256
// hex digest of the current Windows file time floored to five minutes,
// concatenated with the trusted client token.
func secMSGEC(now time.Time) string {
	const windowsEpochOffset = 11644473600 // seconds from 1601-01-01 to 1970-01-01
	ticks := (now.Unix() + windowsEpochOffset) * 10_000_000
	ticks -= ticks % 3_000_000_000 // five minutes in 100 ns ticks
	sum := sha256.Sum256(fmt.Appendf(nil, "%d%s", ticks, trustedClientToken))
	return fmt.Sprintf("%X", sum)
}

func requestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
