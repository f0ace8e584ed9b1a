// Package signature implements both generations of the reward-callback
// signing protocol. Inbound callbacks are verified with the legacy scheme: an
// unkeyed MD5 digest salted with a process-wide private key. Outbound forwards
// to publishers that have a per-client signing key are signed with HMAC-SHA256.
// The two directions are independent: a client having a signing secret does not
// change how its inbound callbacks are verified.
package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyLegacy recomputes the legacy callback digest and compares it to the
// candidate supplied by the network. The digest is MD5 over the concatenation
// timestamp+eventID+userID+rewards+privateKey, encoded as lowercase hex.
// Comparison is exact string equality: an uppercase-hex candidate does not
// match.
func VerifyLegacy(timestamp, eventID, userID, rewards, privateKey, candidate string) bool {
	sum := md5.Sum([]byte(timestamp + eventID + userID + rewards + privateKey))
	return hex.EncodeToString(sum[:]) == candidate
}

// SignResponse produces the outbound forward signature for clients that carry
// a per-client signing secret: HMAC-SHA256 over clientID+eventID+userID+timestamp,
// encoded as lowercase hex.
func SignResponse(clientID, eventID, userID, timestamp, signatureSecret string) string {
	mac := hmac.New(sha256.New, []byte(signatureSecret))
	mac.Write([]byte(clientID + eventID + userID + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
