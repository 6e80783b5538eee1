package quickbooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw body keyed by the verifier token
const SignatureHeader = "intuit-signature"

// VerifySignature checks signature against the HMAC of payload. Any mismatch is a rejection.
func VerifySignature(verifierToken string, payload []byte, signature string) bool {
	if verifierToken == "" || signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(verifierToken))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the signature the provider would send for payload
func Sign(verifierToken string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(verifierToken))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Notification is the webhook envelope
type Notification struct {
	EventNotifications []EventNotification `json:"eventNotifications"`
}

type EventNotification struct {
	RealmID         string `json:"realmId"`
	DataChangeEvent struct {
		Entities []EntityChange `json:"entities"`
	} `json:"dataChangeEvent"`
}

// EntityChange is one changed record
type EntityChange struct {
	Name        string    `json:"name"`
	ID          string    `json:"id"`
	Operation   string    `json:"operation"` // Create, Update, Delete, Merge, Void, Emailed
	LastUpdated time.Time `json:"lastUpdated"`
}

const OperationDelete = "Delete"

// ParseNotification decodes a webhook body
func ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return &n, nil
}
