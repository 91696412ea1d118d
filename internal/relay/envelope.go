package relay

import (
	"encoding/json"
	"fmt"
)

// marshalEncryptedEnvelope wraps a client-supplied ciphertext blob as
// the {t:"encrypted", c:<payload>} shape stored for session messages
// (§3). The relay never inspects or decodes the ciphertext itself.
func marshalEncryptedEnvelope(c string) (string, error) {
	data, err := json.Marshal(encryptedEnvelope{T: "encrypted", C: c})
	if err != nil {
		return "", fmt.Errorf("failed to marshal encrypted envelope: %w", err)
	}
	return string(data), nil
}
