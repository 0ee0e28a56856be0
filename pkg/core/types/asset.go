// Package types holds the data shapes shared by the studios, stores, gateway
// and SDK.
package types

// StudioTab identifies the studio that produced an item.
type StudioTab string

const (
	TabText         StudioTab = "text"
	TabImage        StudioTab = "image"
	TabVideo        StudioTab = "video"
	TabLive         StudioTab = "live"
	TabOrchestrator StudioTab = "orchestrator"
	TabArchitecture StudioTab = "architecture"
)

// AssetType is the media kind of a generated asset.
type AssetType string

const (
	AssetText  AssetType = "text"
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
)

// GeneratedAsset is a single piece of generated media.
type GeneratedAsset struct {
	ID        string    `json:"id" msgpack:"id"`
	Type      AssetType `json:"type" msgpack:"type"`
	Content   string    `json:"content" msgpack:"content"`
	Timestamp int64     `json:"timestamp" msgpack:"timestamp"`
	Prompt    string    `json:"prompt" msgpack:"prompt"`
}

// GroundingSource is a citation returned with search-grounded text.
type GroundingSource struct {
	Title string `json:"title" msgpack:"title"`
	URI   string `json:"uri" msgpack:"uri"`
}

// TextResult is the output of a text generation.
type TextResult struct {
	Text    string            `json:"text"`
	Sources []GroundingSource `json:"sources"`
}

// TextHistoryItem is one saved text generation.
type TextHistoryItem struct {
	ID        string            `json:"id" msgpack:"id"`
	Prompt    string            `json:"prompt" msgpack:"prompt"`
	Text      string            `json:"text" msgpack:"text"`
	Sources   []GroundingSource `json:"sources" msgpack:"sources"`
	Timestamp int64             `json:"timestamp" msgpack:"timestamp"`
}

// ImageHistoryItem is one saved image generation.
type ImageHistoryItem struct {
	ID        string `json:"id" msgpack:"id"`
	Prompt    string `json:"prompt" msgpack:"prompt"`
	ImageURL  string `json:"imageUrl" msgpack:"image_url"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}
