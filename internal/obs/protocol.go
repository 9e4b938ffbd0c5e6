package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// Subprotocol is the websocket subprotocol for JSON-encoded obs-websocket messages.
const Subprotocol = "obswebsocket.json"

// RPCVersion is the obs-websocket RPC version this client speaks.
const RPCVersion = 1

// Message opcodes.
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// Request status codes used by this client.
const (
	CodeSuccess          = 100
	CodeOutputNotRunning = 501
	CodeOutputPaused     = 502
	CodeOutputNotPaused  = 503
	CodeResourceNotFound = 600
)

// Event subscription bits.
const (
	EventSubscriptionNone              = 0
	EventSubscriptionInputVolumeMeters = 1 << 16
)

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type outgoing struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type hello struct {
	ObsWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

type request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type requestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

type requestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus requestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

type event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

type inputVolumeMeters struct {
	Inputs []struct {
		InputName      string      `json:"inputName"`
		InputLevelsMul [][]float64 `json:"inputLevelsMul"`
	} `json:"inputs"`
}

// AuthResponse computes the Identify authentication string for a Hello challenge.
func AuthResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
