package rest

import (
	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/queue"
	"github.com/mediadl/mediadl/server/internal/release"
)

type ContainerArgs struct {
	Queue    *queue.Queue
	Releases *release.Client
}

type EngineInfo struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Channel  string   `json:"channel"`
	Location string   `json:"location,omitempty"`
	Version  string   `json:"version,omitempty"`
}

type InstallResponse struct {
	Engine  string `json:"engine"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

type ProbeRequest struct {
	Engine  string `json:"engine"`
	URL     string `json:"url"`
	Cookies string `json:"cookies,omitempty"`
}

type AddRequest struct {
	Streams []engine.StreamInfo `json:"streams"`
}

// Selection addresses tasks by id and/or by a [from, to) position range.
type Selection struct {
	IDs   []string `json:"ids"`
	Range *[2]int  `json:"range,omitempty"`
}

type CountResponse struct {
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}
