package dto

import (
	"github.com/remiblancher/qp12/pkg/p12"
)

// BuildRequest is the body of POST /api/v1/pkcs12.
type BuildRequest struct {
	// PrivateKey is the PEM private key (PKCS#8, PKCS#1 or SEC1).
	PrivateKey string `json:"private_key"`

	// KeyPassphrase decrypts a legacy encrypted PEM key.
	KeyPassphrase string `json:"key_passphrase,omitempty"`

	// Certificate is the PEM end-entity certificate.
	Certificate string `json:"certificate"`

	// CACerts is a PEM bundle of CA certificates, in chain order.
	CACerts string `json:"ca_certs,omitempty"`

	// Passphrase protects the container. It may be empty but not absent.
	Passphrase *string `json:"passphrase"`

	FriendlyName string `json:"friendly_name,omitempty"`
}

// RepassphraseRequest is the body of POST /api/v1/pkcs12/repassphrase.
type RepassphraseRequest struct {
	// Container is the base64 PKCS#12 container.
	Container     string  `json:"container"`
	Passphrase    *string `json:"passphrase"`
	NewPassphrase *string `json:"new_passphrase"`

	// FriendlyName, when set, replaces the stored friendly name.
	FriendlyName string `json:"friendly_name,omitempty"`
}

// InspectRequest is the body of POST /api/v1/pkcs12/inspect.
type InspectRequest struct {
	Container  string  `json:"container"`
	Passphrase *string `json:"passphrase"`
}

// ContainerResponse carries a built container.
type ContainerResponse struct {
	// Container is the base64 PKCS#12 container.
	Container string `json:"container"`
	Size      int    `json:"size"`
	Engine    string `json:"engine"`
}

// InspectResponse reports the content of a container.
type InspectResponse struct {
	*p12.Info
}

// ProviderStatus reports one provider probe.
type ProviderStatus struct {
	Name       string   `json:"name"`
	Available  bool     `json:"available"`
	Algorithms []string `json:"algorithms,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ProvidersResponse is the body of GET /api/v1/providers.
type ProvidersResponse struct {
	Engine    string           `json:"engine"`
	Providers []ProviderStatus `json:"providers"`
}
