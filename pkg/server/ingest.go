package server

import (
	"encoding/json"
	"net/http"

	"github.com/flowscope/flowscope/pkg/domain/types"
)

// IngestEvent is the wire shape hosts use to push node-level notifications
// when FlowScope runs out of process. In-process hosts call the manager's
// OnNode* methods directly instead.
type IngestEvent struct {
	// Type is one of "input", "output", or "error".
	Type string `json:"type"`
	// NodeID identifies the node the event is about.
	NodeID string `json:"nodeId"`
	// NodeType is the node's declared type.
	NodeType string `json:"nodeType"`
	// CorrelationKey links events of one causal chain, when available.
	CorrelationKey string `json:"correlationKey,omitempty"`
	// Message is the raw message payload; arbitrary shape.
	Message json.RawMessage `json:"message,omitempty"`
	// Error carries error details for type "error".
	Error *IngestError `json:"error,omitempty"`
}

// IngestError is the error detail for ingested error events.
type IngestError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// hostError adapts an ingested error to the manager's error interface.
type hostError struct {
	message string
	code    string
}

func (e *hostError) Error() string { return e.message }
func (e *hostError) Code() string  { return e.code }

// handleIngest accepts one node-level notification. Always answers 202 for
// well-formed requests: the manager's recording path is total and ingestion
// must be strictly safer to call than the code it observes.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var event IngestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	nodeID := types.NodeID(event.NodeID)
	key := types.CorrelationKey(event.CorrelationKey)
	raw := rawMessageValue(event.Message)

	switch event.Type {
	case "input":
		s.manager.OnNodeInput(nodeID, event.NodeType, key, raw)
	case "output":
		s.manager.OnNodeOutput(nodeID, event.NodeType, key, raw)
	case "error":
		herr := &hostError{message: "unknown error"}
		if event.Error != nil {
			herr = &hostError{message: event.Error.Message, code: event.Error.Code}
		}
		s.manager.OnNodeError(nodeID, event.NodeType, key, raw, herr)
	default:
		s.writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// rawMessageValue decodes an ingested payload into the generic value shape
// the capture pipeline walks. Undecodable payloads are kept as raw bytes;
// truncation will render them as a buffer placeholder rather than lose the
// event.
func rawMessageValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return []byte(raw)
	}
	return v
}
