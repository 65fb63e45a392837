package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"loupgarou/engine"
)

// Toast represents a notification message to show to the user
type Toast struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var toastCounter atomic.Int64

// renderToast encodes a toast as a websocket message.
func renderToast(toastType, message, code string) []byte {
	toast := Toast{ID: strconv.FormatInt(toastCounter.Add(1), 10), Type: toastType, Message: message, Code: code}
	msg, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Toast Toast  `json:"toast"`
	}{"toast", toast})
	return msg
}

// sendErrorToast sends an error toast to one client
func sendErrorToast(client *Client, message string) {
	client.send(renderToast("error", message, ""))
}

// reportError tells the client why a command failed. Rule violations go back
// as they are; anything else is logged and reported as a generic failure.
func reportError(client *Client, context string, err error) {
	var ruleErr *engine.Error
	if errors.As(err, &ruleErr) {
		DebugLog("%s: %v", context, err)
		client.send(renderToast("error", ruleErr.Message, string(ruleErr.Code)))
		return
	}
	logError(context, err)
	sendErrorToast(client, "Something went wrong")
}

// writeJSONError answers an HTTP request with {"error": message}.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONErrorCode(w, status, message, "")
}

func writeJSONErrorCode(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// httpStatusFor maps an engine error to an HTTP status.
func httpStatusFor(err error) (int, string) {
	var ruleErr *engine.Error
	if !errors.As(err, &ruleErr) {
		return http.StatusInternalServerError, ""
	}
	switch ruleErr.Code {
	case engine.CodeActionNotPermitted, engine.CodeDuplicateAction:
		return http.StatusConflict, string(ruleErr.Code)
	default:
		return http.StatusBadRequest, string(ruleErr.Code)
	}
}
