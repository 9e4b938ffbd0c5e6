package obs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// Version describes the connected OBS instance.
type Version struct {
	OBSVersion          string `json:"obsVersion"`
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Platform            string `json:"platform"`
}

// RecordStatus is the state of the recording output.
type RecordStatus struct {
	OutputActive   bool    `json:"outputActive"`
	OutputPaused   bool    `json:"outputPaused"`
	OutputTimecode string  `json:"outputTimecode"`
	OutputDuration float64 `json:"outputDuration"`
	OutputBytes    int64   `json:"outputBytes"`
}

// Input is an OBS input such as a microphone or media source.
type Input struct {
	Name string `json:"inputName"`
	Kind string `json:"inputKind"`
}

// InputVolume is the fader volume of an input.
type InputVolume struct {
	Mul float64 `json:"inputVolumeMul"`
	DB  float64 `json:"inputVolumeDb"`
}

// GetVersion returns version information for OBS and the websocket plugin.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.Request(ctx, "GetVersion", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetRecordStatus returns the recording output state.
func (c *Client) GetRecordStatus(ctx context.Context) (*RecordStatus, error) {
	var s RecordStatus
	if err := c.Request(ctx, "GetRecordStatus", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PauseRecord pauses the active recording.
func (c *Client) PauseRecord(ctx context.Context) error {
	return c.Request(ctx, "PauseRecord", nil, nil)
}

// ResumeRecord resumes a paused recording.
func (c *Client) ResumeRecord(ctx context.Context) error {
	return c.Request(ctx, "ResumeRecord", nil, nil)
}

// GetInputList lists all inputs.
func (c *Client) GetInputList(ctx context.Context) ([]Input, error) {
	var resp struct {
		Inputs []Input `json:"inputs"`
	}
	if err := c.Request(ctx, "GetInputList", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Inputs, nil
}

// GetInputVolume returns the fader volume of a named input.
func (c *Client) GetInputVolume(ctx context.Context, input string) (*InputVolume, error) {
	var v InputVolume
	req := map[string]any{"inputName": input}
	if err := c.Request(ctx, "GetInputVolume", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type screenshotRequest struct {
	SourceName  string `json:"sourceName"`
	ImageFormat string `json:"imageFormat"`
	ImageWidth  int    `json:"imageWidth,omitempty"`
}

// GetSourceScreenshot renders the current frame of a source or scene.
// A width of zero keeps the source resolution.
func (c *Client) GetSourceScreenshot(ctx context.Context, source string, width int) (image.Image, error) {
	var resp struct {
		ImageData string `json:"imageData"`
	}
	req := screenshotRequest{SourceName: source, ImageFormat: "png", ImageWidth: width}
	if err := c.Request(ctx, "GetSourceScreenshot", req, &resp); err != nil {
		return nil, err
	}
	return decodeDataURI(resp.ImageData)
}

// decodeDataURI decodes "data:image/png;base64,<payload>".
func decodeDataURI(uri string) (image.Image, error) {
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		i := strings.IndexByte(uri, ',')
		if i < 0 {
			return nil, fmt.Errorf("malformed data uri")
		}
		payload = uri[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot png: %w", err)
	}
	return img, nil
}
