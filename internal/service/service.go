// Package service orchestrates the Azure AD login, role synchronization and single sign-out flows.
// Services depend on port interfaces only; adapters are wired in internal/bootstrap.
package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/target/aad-connect/internal/observability/metrics"
)

// Observability groups the optional logging and metrics dependencies shared by services.
type Observability struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func (o Observability) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// randomToken returns n random bytes encoded as unpadded base64url.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
