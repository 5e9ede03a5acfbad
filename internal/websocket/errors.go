package websocket

import "errors"

var errHubStopped = errors.New("websocket hub stopped")
