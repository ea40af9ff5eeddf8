package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// PacketKind classifies one streamed chat packet.
type PacketKind string

const (
	KindAnswerPiece   PacketKind = "answer_piece"
	KindCitations     PacketKind = "citations"
	KindCitation      PacketKind = "citation"
	KindMessageIDs    PacketKind = "message_ids"
	KindMessageDetail PacketKind = "message_detail"
	KindStop          PacketKind = "stop"
	KindError         PacketKind = "error"
	KindUnknown       PacketKind = "unknown"
)

// Packet is one newline-delimited JSON object from the chat backend.
// The backend sends several shapes on the same stream; they are folded
// into one flat struct and told apart by Kind.
type Packet struct {
	AnswerPiece *string `json:"answer_piece,omitempty"`

	Citations   CitationList `json:"citations,omitempty"`
	CitationNum *int         `json:"citation_num,omitempty"`
	DocumentID  string       `json:"document_id,omitempty"`

	UserMessageID              *int `json:"user_message_id,omitempty"`
	ReservedAssistantMessageID *int `json:"reserved_assistant_message_id,omitempty"`

	// Final message detail.
	MessageID *int    `json:"message_id,omitempty"`
	Message   *string `json:"message,omitempty"`

	StopReason string  `json:"stop_reason,omitempty"`
	Error      string  `json:"error,omitempty"`
	StackTrace *string `json:"stack_trace,omitempty"`
}

func (p Packet) Kind() PacketKind {
	switch {
	case p.Error != "":
		return KindError
	case p.StopReason != "":
		return KindStop
	case p.AnswerPiece != nil:
		return KindAnswerPiece
	case p.ReservedAssistantMessageID != nil:
		return KindMessageIDs
	case p.MessageID != nil:
		return KindMessageDetail
	case len(p.Citations) > 0:
		return KindCitations
	case p.CitationNum != nil:
		return KindCitation
	}
	return KindUnknown
}

type Citation struct {
	CitationNum int    `json:"citation_num"`
	DocumentID  string `json:"document_id"`
}

// CitationList accepts both the streamed form
// ([{"citation_num":1,"document_id":"..."}]) and the map form carried on the
// final message detail ({"1": 42}).
type CitationList []Citation

func (l *CitationList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var list []Citation
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var byNum map[string]json.RawMessage
	if err := json.Unmarshal(data, &byNum); err != nil {
		return fmt.Errorf("citations: %w", err)
	}
	out := make(CitationList, 0, len(byNum))
	for k, v := range byNum {
		num, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("citation number %q: %w", k, err)
		}
		out = append(out, Citation{CitationNum: num, DocumentID: string(unquote(v))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitationNum < out[j].CitationNum })
	*l = out
	return nil
}

func unquote(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}
