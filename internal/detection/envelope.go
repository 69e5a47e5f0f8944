package detection

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// WireProtocol holds the fields the worker pool's ingestion contract fixes:
// a Celery protocol v2 message with a base64 JSON body. Build it once at
// startup with NewWireProtocol and pass it by value.
type WireProtocol struct {
	taskName        string
	queue           string
	origin          string
	contentType     string
	contentEncoding string
	bodyEncoding    string
	deliveryMode    int
	priority        int
}

const (
	DefaultTaskName = "tasks.detect_characters"
	DefaultQueue    = "celery"
)

// NewWireProtocol returns the protocol for taskName routed to queue. Empty
// arguments fall back to the defaults.
func NewWireProtocol(taskName, queue, origin string) WireProtocol {
	if strings.TrimSpace(taskName) == "" {
		taskName = DefaultTaskName
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	if strings.TrimSpace(origin) == "" {
		origin = "clipdetect"
	}
	return WireProtocol{
		taskName:        taskName,
		queue:           queue,
		origin:          origin,
		contentType:     "application/json",
		contentEncoding: "utf-8",
		bodyEncoding:    "base64",
		deliveryMode:    2,
		priority:        0,
	}
}

func (p WireProtocol) TaskName() string { return p.taskName }
func (p WireProtocol) Queue() string    { return p.queue }
func (p WireProtocol) Origin() string   { return p.origin }

// Envelope is one unit of dispatched work.
type Envelope struct {
	TaskID string
	ClipID string
	Inputs []string
}

type envelopeKwargs struct {
	TaskID    string   `json:"task_id"`
	ClipID    string   `json:"clip_id"`
	ImageURLs []string `json:"image_urls"`
}

type envelopeEmbed struct {
	Callbacks any `json:"callbacks"`
	Errbacks  any `json:"errbacks"`
	Chain     any `json:"chain"`
	Chord     any `json:"chord"`
}

type messageHeaders struct {
	Lang         string  `json:"lang"`
	Task         string  `json:"task"`
	ID           string  `json:"id"`
	Shadow       *string `json:"shadow"`
	ETA          *string `json:"eta"`
	Expires      *string `json:"expires"`
	Group        *string `json:"group"`
	GroupIndex   *int    `json:"group_index"`
	Retries      int     `json:"retries"`
	TimeLimit    [2]*int `json:"timelimit"`
	RootID       string  `json:"root_id"`
	ParentID     *string `json:"parent_id"`
	ArgsRepr     string  `json:"argsrepr"`
	KwargsRepr   string  `json:"kwargsrepr"`
	Origin       string  `json:"origin"`
	IgnoreResult bool    `json:"ignore_result"`
}

type deliveryInfo struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

type messageProperties struct {
	CorrelationID string       `json:"correlation_id"`
	ReplyTo       string       `json:"reply_to"`
	DeliveryMode  int          `json:"delivery_mode"`
	DeliveryInfo  deliveryInfo `json:"delivery_info"`
	Priority      int          `json:"priority"`
	BodyEncoding  string       `json:"body_encoding"`
	DeliveryTag   string       `json:"delivery_tag"`
}

type message struct {
	Body            string            `json:"body"`
	ContentEncoding string            `json:"content-encoding"`
	ContentType     string            `json:"content-type"`
	Headers         messageHeaders    `json:"headers"`
	Properties      messageProperties `json:"properties"`
}

// Encode serializes env into the message the worker pool parses.
func (p WireProtocol) Encode(env Envelope) ([]byte, error) {
	if env.TaskID == "" {
		return nil, fmt.Errorf("encode envelope: empty task id")
	}
	kwargs := envelopeKwargs{TaskID: env.TaskID, ClipID: env.ClipID, ImageURLs: env.Inputs}
	if kwargs.ImageURLs == nil {
		kwargs.ImageURLs = []string{}
	}
	body, err := json.Marshal([]any{[]any{}, kwargs, envelopeEmbed{}})
	if err != nil {
		return nil, fmt.Errorf("encode envelope body: %w", err)
	}
	msg := message{
		Body:            base64.StdEncoding.EncodeToString(body),
		ContentEncoding: p.contentEncoding,
		ContentType:     p.contentType,
		Headers: messageHeaders{
			Lang:         "py",
			Task:         p.taskName,
			ID:           env.TaskID,
			RootID:       env.TaskID,
			ArgsRepr:     "()",
			KwargsRepr:   kwargs.repr(),
			Origin:       p.origin,
			IgnoreResult: true,
		},
		Properties: messageProperties{
			CorrelationID: env.TaskID,
			ReplyTo:       uuid.NewString(),
			DeliveryMode:  p.deliveryMode,
			DeliveryInfo:  deliveryInfo{Exchange: "", RoutingKey: p.queue},
			Priority:      p.priority,
			BodyEncoding:  p.bodyEncoding,
			DeliveryTag:   uuid.NewString(),
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode is the inverse of Encode. The service never consumes its own queue;
// it exists for tooling and tests that inspect queued work.
func (p WireProtocol) Decode(raw []byte) (Envelope, error) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	body, err := base64.StdEncoding.DecodeString(msg.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode envelope body: %w", err)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope body: %w", err)
	}
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("decode envelope body: want 3 parts, got %d", len(parts))
	}
	var kwargs envelopeKwargs
	if err := json.Unmarshal(parts[1], &kwargs); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope kwargs: %w", err)
	}
	return Envelope{TaskID: kwargs.TaskID, ClipID: kwargs.ClipID, Inputs: kwargs.ImageURLs}, nil
}

// repr renders kwargs the way Python's repr() prints the same dict. The
// worker only logs it.
func (k envelopeKwargs) repr() string {
	urls := make([]string, 0, len(k.ImageURLs))
	for _, u := range k.ImageURLs {
		urls = append(urls, pyQuote(u))
	}
	return fmt.Sprintf("{'task_id': %s, 'clip_id': %s, 'image_urls': [%s]}",
		pyQuote(k.TaskID), pyQuote(k.ClipID), strings.Join(urls, ", "))
}

func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
