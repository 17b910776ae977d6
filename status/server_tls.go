//go:build !tinygo

package status

import (
	"golang.org/x/crypto/acme/autocert"
)

// ServeTLS serves with a certificate for host from Let's Encrypt
func (s *Server) ServeTLS(host string) error {
	return s.Serve(autocert.NewListener(host))
}
