// Package discovery объявляет сервер в локальной сети через mDNS
// и находит его на стороне клиента, если адрес не задан.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// Service тип mDNS-сервиса
	Service = "_gophtex._tcp"
	// Domain домен mDNS
	Domain = "local."

	txtVersion = "version="
	txtNode    = "node="
	txtScheme  = "scheme="
)

// ErrNotFound возвращается, если за время поиска сервер не найден
var ErrNotFound = errors.New("no server found on local network")

// Announcement описание объявляемого узла
type Announcement struct {
	Instance string
	Version  string
	NodeID   string
	Scheme   string // http или https
	Port     int
}

func (a Announcement) txt() []string {
	scheme := a.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return []string{txtVersion + a.Version, txtNode + a.NodeID, txtScheme + scheme}
}

// Registration активное объявление сервера
type Registration struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// Register объявляет сервер в локальной сети
func Register(a Announcement, logger *slog.Logger) (*Registration, error) {
	if a.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", a.Port)
	}

	server, err := zeroconf.Register(a.Instance, Service, Domain, a.Port, a.txt(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.Info("mDNS service registered", "instance", a.Instance, "service", Service, "port", a.Port)
	return &Registration{server: server, logger: logger}, nil
}

// Shutdown снимает объявление
func (r *Registration) Shutdown() {
	r.server.Shutdown()
	r.logger.Info("mDNS service unregistered")
}

// Endpoint найденный сервер
type Endpoint struct {
	Instance string
	NodeID   string
	Version  string
	URL      string
}

// Browse ищет серверы до отмены ctx и возвращает всех найденных
func Browse(ctx context.Context, logger *slog.Logger) ([]Endpoint, error) {
	var endpoints []Endpoint
	err := browse(ctx, logger, func(e Endpoint) bool {
		endpoints = append(endpoints, e)
		return true
	})
	return endpoints, err
}

// Find возвращает первый найденный сервер, не дожидаясь отмены ctx
func Find(ctx context.Context, logger *slog.Logger) (Endpoint, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found *Endpoint
	err := browse(ctx, logger, func(e Endpoint) bool {
		found = &e
		return false
	})
	if err != nil {
		return Endpoint{}, err
	}
	if found == nil {
		return Endpoint{}, ErrNotFound
	}
	return *found, nil
}

// browse передает найденные серверы в next, пока next возвращает true
func browse(ctx context.Context, logger *slog.Logger, next func(Endpoint) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			endpoint, ok := endpointFromEntry(entry)
			if !ok {
				continue
			}
			logger.Debug("mDNS server discovered", "instance", endpoint.Instance, "url", endpoint.URL)
			if !next(endpoint) {
				return nil
			}
		}
	}
}

func endpointFromEntry(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return Endpoint{}, false
	}

	endpoint := Endpoint{Instance: entry.Instance}
	scheme := "http"
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, txtVersion):
			endpoint.Version = strings.TrimPrefix(txt, txtVersion)
		case strings.HasPrefix(txt, txtNode):
			endpoint.NodeID = strings.TrimPrefix(txt, txtNode)
		case strings.HasPrefix(txt, txtScheme):
			scheme = strings.TrimPrefix(txt, txtScheme)
		}
	}

	endpoint.URL = scheme + "://" + net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
	return endpoint, true
}
