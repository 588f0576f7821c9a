// Package service implements the REST API operations on top of p12.Codec.
package service

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/remiblancher/qp12/internal/api/dto"
	"github.com/remiblancher/qp12/internal/credential"
	"github.com/remiblancher/qp12/pkg/p12"
	"github.com/remiblancher/qp12/pkg/provider"
)

// PKCS12Service builds, re-protects and inspects containers.
type PKCS12Service struct {
	codec *p12.Codec
}

// NewPKCS12Service creates a PKCS12Service.
func NewPKCS12Service(codec *p12.Codec) *PKCS12Service {
	return &PKCS12Service{codec: codec}
}

// Engine returns the engine name.
func (s *PKCS12Service) Engine() string { return s.codec.Engine() }

// Build creates a container from PEM material.
func (s *PKCS12Service) Build(ctx context.Context, req *dto.BuildRequest) (*dto.ContainerResponse, error) {
	if req.Passphrase == nil {
		return nil, fmt.Errorf("%w: passphrase is required (it may be empty)", p12.ErrInvalidInput)
	}

	key, err := credential.ParsePrivateKeyPEM([]byte(req.PrivateKey), []byte(req.KeyPassphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: private_key: %w", p12.ErrInvalidInput, err)
	}
	certs, err := credential.DecodeCertificatesPEM([]byte(req.Certificate))
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %w", p12.ErrInvalidInput, err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: certificate: %w", p12.ErrInvalidInput, credential.ErrNoCertificate)
	}
	chain, err := credential.DecodeCertificatesPEM([]byte(req.CACerts))
	if err != nil {
		return nil, fmt.Errorf("%w: ca_certs: %w", p12.ErrInvalidInput, err)
	}
	// Extra certificates in certificate come first in the chain
	cas := append(append([]*x509.Certificate(nil), certs[1:]...), chain...)

	data, err := s.codec.Build(ctx, &p12.BuildRequest{
		Passphrase:   *req.Passphrase,
		FriendlyName: req.FriendlyName,
		PrivateKey:   key,
		Certificate:  certs[0],
		CACerts:      cas,
	})
	if err != nil {
		return nil, err
	}
	return s.container(data), nil
}

// Repassphrase re-protects a container under a new passphrase.
func (s *PKCS12Service) Repassphrase(ctx context.Context, req *dto.RepassphraseRequest) (*dto.ContainerResponse, error) {
	if req.Passphrase == nil || req.NewPassphrase == nil {
		return nil, fmt.Errorf("%w: passphrase and new_passphrase are required (they may be empty)", p12.ErrInvalidInput)
	}
	data, err := dto.DecodeContainer(req.Container)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrInvalidInput, err)
	}

	out, err := s.codec.Repassphrase(ctx, &p12.RepassphraseRequest{
		Data:          data,
		Passphrase:    *req.Passphrase,
		NewPassphrase: *req.NewPassphrase,
		FriendlyName:  req.FriendlyName,
	})
	if err != nil {
		return nil, err
	}
	return s.container(out), nil
}

// Inspect reports what a container holds.
func (s *PKCS12Service) Inspect(ctx context.Context, req *dto.InspectRequest) (*dto.InspectResponse, error) {
	if req.Passphrase == nil {
		return nil, fmt.Errorf("%w: passphrase is required (it may be empty)", p12.ErrInvalidInput)
	}
	data, err := dto.DecodeContainer(req.Container)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrInvalidInput, err)
	}

	info, err := s.codec.Inspect(ctx, data, *req.Passphrase)
	if err != nil {
		return nil, err
	}
	return &dto.InspectResponse{Info: info}, nil
}

// Providers probes every configured provider once, unloading it right away.
func (s *PKCS12Service) Providers(ctx context.Context) *dto.ProvidersResponse {
	resp := &dto.ProvidersResponse{Engine: s.codec.Engine()}
	for _, name := range s.codec.Providers() {
		st := dto.ProviderStatus{Name: name}
		h, err := s.codec.Registry().Load(ctx, name)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Available = true
			for _, alg := range supported(h.Provider()) {
				st.Algorithms = append(st.Algorithms, string(alg))
			}
			if err := h.Unload(); err != nil {
				st.Error = err.Error()
			}
		}
		resp.Providers = append(resp.Providers, st)
	}
	return resp
}

// Ready reports whether every configured provider loads.
func (s *PKCS12Service) Ready(ctx context.Context) map[string]bool {
	checks := make(map[string]bool)
	for _, st := range s.Providers(ctx).Providers {
		checks["provider:"+st.Name] = st.Available
	}
	return checks
}

func (s *PKCS12Service) container(data []byte) *dto.ContainerResponse {
	return &dto.ContainerResponse{
		Container: dto.EncodeContainer(data),
		Size:      len(data),
		Engine:    s.codec.Engine(),
	}
}

// supported lists the catalog algorithms p supplies.
func supported(p provider.Provider) []provider.Algorithm {
	var out []provider.Algorithm
	for _, alg := range provider.Catalog(p.Name()) {
		if p.Supports(alg) {
			out = append(out, alg)
		}
	}
	return out
}
