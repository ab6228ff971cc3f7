package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	volcengineEndpoint   = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	resourceDuration     = "volc.bigasr.sauc.duration"
	resourceConcurrent   = "volc.bigasr.sauc.concurrent"
	audioChunkSize       = 6400
	audioChunkInterval   = 200 * time.Millisecond
	volcengineSuccessful = 20000000
)

// VolcengineOptions 描述火山引擎大模型流式识别的接入参数。
type VolcengineOptions struct {
	AppID          string
	AccessToken    string
	ConcurrentMode bool
	Language       string
	Timeout        time.Duration
	// Endpoint 为空时使用官方 nostream 地址。
	Endpoint string
	// ChunkInterval 控制分包发送节奏，为零时按 200ms 模拟实时音频。
	ChunkInterval time.Duration
}

// VolcengineTranscriber 通过 WebSocket 二进制协议调用火山引擎 ASR。
type VolcengineTranscriber struct {
	opts   VolcengineOptions
	dialer *websocket.Dialer
}

// NewVolcengineTranscriber 校验凭证并创建识别器。
func NewVolcengineTranscriber(opts VolcengineOptions) (*VolcengineTranscriber, error) {
	opts.AppID = strings.TrimSpace(opts.AppID)
	opts.AccessToken = strings.TrimSpace(opts.AccessToken)
	if opts.AppID == "" || opts.AccessToken == "" {
		return nil, fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = volcengineEndpoint
	}
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = audioChunkInterval
	}
	if opts.Language == "" {
		opts.Language = "ru-RU"
	}

	return &VolcengineTranscriber{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
	}, nil
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName  string `json:"model_name"`
		EnableITN  bool   `json:"enable_itn,omitempty"`
		EnablePunc bool   `json:"enable_punc,omitempty"`
		ResultType string `json:"result_type,omitempty"`
	} `json:"request"`
}

type asrResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
}

func (r asrResult) text() string {
	if r.Result.Text != "" {
		return r.Result.Text
	}
	parts := make([]string, 0, len(r.Result.Utterances))
	for _, u := range r.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func (v *VolcengineTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to transcribe")
	}
	if v.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.Timeout)
		defer cancel()
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", v.opts.AppID)
	header.Set("X-Api-Access-Key", v.opts.AccessToken)
	header.Set("X-Api-Connect-Id", connectID)
	if v.opts.ConcurrentMode {
		header.Set("X-Api-Resource-Id", resourceConcurrent)
	} else {
		header.Set("X-Api-Resource-Id", resourceDuration)
	}

	conn, resp, err := v.dialer.DialContext(ctx, v.opts.Endpoint, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()
	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		log.Printf("[speech] volcengine connected logid=%s", logid)
	}

	// 取消时关闭连接，让阻塞的读写尽快返回。
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := v.sendRequest(conn, connectID, format); err != nil {
		return "", err
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- v.sendAudio(ctx, conn, audio) }()

	text, err := v.receive(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	if err := <-sendErr; err != nil {
		return "", fmt.Errorf("failed to send audio data: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (v *VolcengineTranscriber) sendRequest(conn *websocket.Conn, uid, format string) error {
	if format == "" {
		format = "ogg"
	}

	var req asrRequest
	req.User.UID = uid
	req.Audio.Language = v.opts.Language
	req.Audio.Format = format
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	if format == "ogg" {
		req.Audio.Codec = "opus"
	} else {
		req.Audio.Codec = "raw"
	}
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ResultType = "full"

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := gzipBytes(raw)
	if err != nil {
		return err
	}

	f := frame{
		Type:          frameFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionGzip,
		Payload:       compressed,
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, f.encode()); err != nil {
		return fmt.Errorf("failed to send ASR request: %w", err)
	}
	return nil
}

// sendAudio 按约 200ms 一包发送音频，序号从 2 开始。
func (v *VolcengineTranscriber) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for start := 0; start < len(audio); start += audioChunkSize {
		end := min(start+audioChunkSize, len(audio))
		last := end == len(audio)

		f, err := audioFrame(audio[start:end], sequence, last)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, f.encode()); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		if last {
			return nil
		}
		sequence++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(v.opts.ChunkInterval):
		}
	}
	return nil
}

func (v *VolcengineTranscriber) receive(conn *websocket.Conn) (string, error) {
	var text string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch f.Type {
		case frameServerError:
			payload, _ := f.payload()
			return "", fmt.Errorf("ASR error %d: %s", f.ErrorCode, string(payload))
		case frameFullServerResponse:
			payload, err := f.payload()
			if err != nil {
				return "", fmt.Errorf("failed to decompress ASR payload: %w", err)
			}
			var result asrResult
			if err := json.Unmarshal(payload, &result); err != nil {
				log.Printf("[speech] failed to unmarshal ASR response: %v", err)
			} else {
				if result.Code != 0 && result.Code != volcengineSuccessful {
					return "", fmt.Errorf("ASR API error %d: %s", result.Code, result.Message)
				}
				if candidate := result.text(); candidate != "" {
					text = candidate
				}
			}
			if f.isLast() {
				return text, nil
			}
		}
	}
}
